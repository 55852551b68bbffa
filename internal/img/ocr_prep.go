package img

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
)

type Prepared struct {
	Bytes []byte
	MIME  string
}

// PrepareForOCR shrinks a photographed page before it is sent to a vision
// model: resize, optional grayscale, flatten alpha onto white, low quality JPEG.
func PrepareForOCR(src io.Reader, maxW, quality int, grayscale bool) (Prepared, error) {
	im, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return Prepared{}, fmt.Errorf("decode page: %w", err)
	}
	if maxW > 0 && im.Bounds().Dx() > maxW {
		im = imaging.Resize(im, maxW, 0, imaging.Lanczos)
	}
	if grayscale {
		im = imaging.Grayscale(im)
	}

	b := im.Bounds()
	flat := imaging.Overlay(imaging.New(b.Dx(), b.Dy(), color.White), im, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(clamp(quality, 40, 85))); err != nil {
		return Prepared{}, err
	}
	return Prepared{Bytes: buf.Bytes(), MIME: "image/jpeg"}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
