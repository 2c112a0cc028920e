package sink

import (
	"bytes"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"

	pmerrors "github.com/matzehuels/pathmap/pkg/errors"
	"github.com/matzehuels/pathmap/pkg/plate"
)

// Page geometry in millimetres.
const (
	MarginTopBottom = 15.0
	MarginSide      = 5.0
	// Gap separates plates stacked on one page.
	Gap = 2.0
)

// DefaultDPI prints one plate pixel at 1/144 inch, half the size of a
// 72 dpi point.
const DefaultDPI = 144

// PDFOptions configures a [PDF].
type PDFOptions struct {
	// DPI converts plate pixels to paper size; zero means DefaultDPI.
	DPI float64
	// Attribution is printed in the footer of every page.
	Attribution string
	Title       string
}

// PDF flows plates top to bottom over portrait A4 pages, starting a new
// page whenever the next plate does not fit. A plate larger than the
// printable area is scaled down to fit it.
type PDF struct {
	pdf *fpdf.Fpdf
	out io.Writer
	dpi float64
	y   float64
	n   int

	// file is set when the sink owns its writer. It is a temporary
	// sibling of path until Close renames it.
	file *os.File
	path string
}

// NewPDF writes the document to w on Close.
func NewPDF(w io.Writer, opts PDFOptions) *PDF {
	if opts.DPI <= 0 {
		opts.DPI = DefaultDPI
	}
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(MarginSide, MarginTopBottom, MarginSide)
	pdf.SetAutoPageBreak(false, MarginTopBottom)
	pdf.SetCreator("pathmap", true)
	if opts.Title != "" {
		pdf.SetTitle(opts.Title, true)
	}
	if opts.Attribution != "" {
		tr := pdf.UnicodeTranslatorFromDescriptor("")
		text := tr(opts.Attribution)
		pdf.SetFooterFunc(func() {
			pdf.SetY(-MarginTopBottom + 3)
			pdf.SetFont("Helvetica", "", 7)
			pdf.SetTextColor(96, 96, 96)
			pdf.CellFormat(0, 4, text, "", 0, "R", false, 0, "")
		})
	}
	return &PDF{pdf: pdf, out: w, dpi: opts.DPI}
}

// NewPDFFile writes the document to path on Close. Until then the pages
// go to a temporary file in the same directory, so an existing file at
// path is only replaced by a complete document.
func NewPDFFile(path string, opts PDFOptions) (*PDF, error) {
	if err := pmerrors.ValidateOutputPath(path); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.ErrCodeInvalidPath, err, "create %s", path)
	}
	s := NewPDF(f, opts)
	s.file = f
	s.path = path
	return s, nil
}

// WritePlate implements [Sink].
func (s *PDF) WritePlate(p plate.Plate) error {
	size := p.Size()
	if size.X == 0 || size.Y == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, p.Image); err != nil {
		return fmt.Errorf("encode plate %d: %w", p.Index, err)
	}

	pageW, pageH := s.pdf.GetPageSize()
	maxW := pageW - 2*MarginSide
	maxH := pageH - 2*MarginTopBottom
	w, h := s.toMM(size.X), s.toMM(size.Y)
	if scale := min(maxW/w, maxH/h); scale < 1 {
		w, h = w*scale, h*scale
	}

	if s.pdf.PageCount() == 0 || s.y+h > pageH-MarginTopBottom {
		s.pdf.AddPage()
		s.y = MarginTopBottom
	}

	name := fmt.Sprintf("plate-%d", s.n)
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	s.pdf.RegisterImageOptionsReader(name, opts, &buf)
	s.pdf.ImageOptions(name, (pageW-w)/2, s.y, w, h, false, opts, 0, "")
	if err := s.pdf.Error(); err != nil {
		return fmt.Errorf("place plate %d: %w", p.Index, err)
	}
	s.y += h + Gap
	s.n++
	return nil
}

// Pages returns the number of pages started so far.
func (s *PDF) Pages() int { return s.pdf.PageCount() }

// Close renders the document. An empty document still gets one blank
// page, since a PDF without pages is not valid.
func (s *PDF) Close() error {
	if s.pdf.PageCount() == 0 {
		s.pdf.AddPage()
	}
	err := s.pdf.Output(s.out)
	if s.file == nil {
		return err
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(s.file.Name(), s.path)
	}
	if err != nil {
		os.Remove(s.file.Name())
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// Abort discards the document. A file at the output path is left as it was.
func (s *PDF) Abort() error {
	if s.file == nil {
		return nil
	}
	s.file.Close()
	if err := os.Remove(s.file.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *PDF) toMM(px int) float64 {
	return float64(px) / s.dpi * 25.4
}

var _ Sink = (*PDF)(nil)
