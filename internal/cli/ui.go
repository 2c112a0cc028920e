package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Terminal palette, borrowed from a topographic map.
var (
	colorTrail   = lipgloss.Color("208") // the drawn path
	colorForest  = lipgloss.Color("35")
	colorOchre   = lipgloss.Color("178")
	colorBrick   = lipgloss.Color("167")
	colorLake    = lipgloss.Color("75")
	colorPaper   = lipgloss.Color("255")
	colorContour = lipgloss.Color("245")
	colorFaint   = lipgloss.Color("240")
)

var (
	// StyleHighlight marks track names and other subjects of a message.
	StyleHighlight = lipgloss.NewStyle().Foreground(colorTrail)
	// StyleLink marks addresses.
	StyleLink = lipgloss.NewStyle().Foreground(colorLake).Underline(true)
	// StyleDim is for secondary text.
	StyleDim = lipgloss.NewStyle().Foreground(colorFaint)
	// StyleValue is for paths and settings.
	StyleValue = lipgloss.NewStyle().Foreground(colorPaper)
	// StyleWarning is for messages that need attention.
	StyleWarning = lipgloss.NewStyle().Foreground(colorOchre)

	styleIconSuccess = lipgloss.NewStyle().Foreground(colorForest)
	styleIconWarning = lipgloss.NewStyle().Foreground(colorOchre)
	styleIconInfo    = lipgloss.NewStyle().Foreground(colorContour)
	styleIconMeter = lipgloss.NewStyle().Foreground(colorTrail)
	styleKey         = lipgloss.NewStyle().Foreground(colorContour).Width(10)
	styleCommand     = lipgloss.NewStyle().Foreground(colorLake)
	styleError       = lipgloss.NewStyle().Foreground(colorBrick)
)

const (
	iconSuccess = "✓"
	iconWarning = "!"
	iconInfo    = "›"
	iconArrow   = "→"
)

// uiOut receives status output. Log lines go to the logger instead.
var uiOut io.Writer = os.Stdout

func emit(line string) { fmt.Fprintln(uiOut, line) }

func printSuccess(format string, args ...any) {
	emit(styleIconSuccess.Render(iconSuccess) + " " + fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	emit(styleIconWarning.Render(iconWarning) + " " + StyleWarning.Render(fmt.Sprintf(format, args...)))
}

func printInfo(format string, args ...any) {
	emit(styleIconInfo.Render(iconInfo) + " " + fmt.Sprintf(format, args...))
}

// printDetail prints an indented secondary line.
func printDetail(format string, args ...any) {
	emit("  " + StyleDim.Render(fmt.Sprintf(format, args...)))
}

// printFile prints a written file.
func printFile(path string) {
	emit("  " + StyleDim.Render(iconArrow) + " " + StyleValue.Render(path))
}

// printKeyValue prints one setting of a running server.
func printKeyValue(key, value string) {
	if value == "" {
		value = styleError.Render("unset")
	}
	emit("  " + styleKey.Render(key) + StyleValue.Render(value))
}

// statsLine summarises a run: "3 plates · 2 pages · 1.2s".
func statsLine(plates, pages int, elapsed time.Duration) string {
	parts := []string{plural(plates, "plate")}
	if pages > 0 {
		parts = append(parts, plural(pages, "page"))
	}
	parts = append(parts, elapsed.Round(time.Millisecond).String())
	return strings.Join(parts, " · ")
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// printRendered reports a finished render: the track, what was written and
// the run statistics.
func printRendered(track string, files []string, plates, pages int, elapsed time.Duration) {
	printSuccess("Rendered %s", StyleHighlight.Render(track))
	for _, f := range files {
		printFile(f)
	}
	emit("  " + StyleDim.Render(statsLine(plates, pages, elapsed)))
}

// printNextStep suggests a command to run next.
func printNextStep(description, cmd string) {
	emit(StyleDim.Render(description+":") + " " + styleCommand.Render(cmd))
}
