package intake

import (
	"fmt"
	"io"

	"github.com/disintegration/imaging"
)

// Preview box used by the upload view
const (
	PreviewWidth  = 350
	PreviewHeight = 350
)

// WritePreview decodes the managed image, scales it down to fit the preview box
// keeping its aspect ratio, and writes it to w as JPEG.
// The stored file is not modified.
func (l *LocalStorage) WritePreview(managedPath string, w io.Writer) error {
	f, err := l.Open(managedPath)
	if err != nil {
		return err
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decoding image: %w", err)
	}

	thumb := imaging.Fit(img, PreviewWidth, PreviewHeight, imaging.Lanczos)
	if err := imaging.Encode(w, thumb, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("encoding preview: %w", err)
	}
	return nil
}
