package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

var meterFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const meterTick = 80 * time.Millisecond

// plateMeter animates one status line while a run draws plates:
//
//	⠹ ride.gpx  plate 3 · 2.4s
//
// It stops by itself when ctx is cancelled.
type plateMeter struct {
	out   io.Writer
	track string
	start time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once

	mu     sync.Mutex
	plates int
	width  int
}

func newPlateMeter(ctx context.Context, out io.Writer, track string) *plateMeter {
	ctx, cancel := context.WithCancel(ctx)
	return &plateMeter{
		out:     out,
		track:   track,
		start:   time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
}

// Start draws the line every tick until Stop or cancellation.
func (m *plateMeter) Start() {
	go func() {
		defer close(m.stopped)
		ticker := time.NewTicker(meterTick)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-m.ctx.Done():
				m.clear()
				return
			case <-ticker.C:
				m.draw(meterFrames[i%len(meterFrames)])
			}
		}
	}()
}

// Plate records that plate n, counted from one, is being drawn.
func (m *plateMeter) Plate(n int) {
	m.mu.Lock()
	m.plates = n
	m.mu.Unlock()
}

// Stop ends the animation and erases the line. It may be called repeatedly.
func (m *plateMeter) Stop() {
	m.once.Do(func() {
		m.cancel()
		<-m.stopped
	})
}

// Cancelled reports whether the meter has stopped.
func (m *plateMeter) Cancelled() bool {
	return m.ctx.Err() != nil
}

// status is the text after the frame.
func (m *plateMeter) status(elapsed time.Duration) string {
	m.mu.Lock()
	n := m.plates
	m.mu.Unlock()
	progress := "projecting"
	if n > 0 {
		progress = fmt.Sprintf("plate %d", n)
	}
	return fmt.Sprintf("%s  %s · %s", m.track, progress, elapsed.Round(100*time.Millisecond))
}

func (m *plateMeter) draw(frame string) {
	text := m.status(time.Since(m.start))
	m.mu.Lock()
	defer m.mu.Unlock()
	fmt.Fprintf(m.out, "\r%s %s", styleIconMeter.Render(frame), StyleDim.Render(text))
	m.width = max(m.width, len(text))
}

func (m *plateMeter) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.width > 0 {
		fmt.Fprintf(m.out, "\r%s\r", strings.Repeat(" ", m.width+4))
	}
}
