// Package sink writes plates out as documents.
//
// A [Sink] receives plates one at a time, in order, and finalises its
// output on Close, or discards it on Abort. [PDF] flows plates down A4 pages for printing; [PNGDir]
// writes each plate as a numbered image.
package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	pmerrors "github.com/matzehuels/pathmap/pkg/errors"
	"github.com/matzehuels/pathmap/pkg/plate"
)

// Sink consumes plates.
type Sink interface {
	WritePlate(p plate.Plate) error
	Close() error
	// Abort drops everything written so far.
	Abort() error
}

// PNGDir writes plate-000.png, plate-001.png, ... into a directory.
type PNGDir struct {
	dir     string
	written []string
}

// NewPNGDir creates dir if needed.
func NewPNGDir(dir string) (*PNGDir, error) {
	if err := pmerrors.ValidateOutputPath(dir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pmerrors.Wrap(pmerrors.ErrCodeInvalidPath, err, "create output directory")
	}
	return &PNGDir{dir: dir}, nil
}

// WritePlate implements [Sink].
func (s *PNGDir) WritePlate(p plate.Plate) error {
	path := filepath.Join(s.dir, fmt.Sprintf("plate-%03d.png", p.Index))
	if err := imaging.Save(p.Image, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.written = append(s.written, path)
	return nil
}

// Files lists the images written so far.
func (s *PNGDir) Files() []string { return s.written }

// Close implements [Sink].
func (s *PNGDir) Close() error { return nil }

// Abort removes the images written so far.
func (s *PNGDir) Abort() error {
	var first error
	for _, path := range s.written {
		if err := os.Remove(path); err != nil && first == nil {
			first = err
		}
	}
	s.written = nil
	return first
}

var _ Sink = (*PNGDir)(nil)
