package img

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

type SaveResult struct {
	Path          string
	Hash          string
	Width, Height int
}

// SaveCover decodes an uploaded image, fits it into maxW x maxW*9/16 by
// cropping to the center and writes it as JPEG under dir/name.jpg.
func SaveCover(src io.Reader, dir, name string, maxW int) (SaveResult, error) {
	im, err := imaging.Decode(src, imaging.AutoOrientation(true))
	if err != nil {
		return SaveResult{}, fmt.Errorf("decode cover: %w", err)
	}
	if im.Bounds().Dx() > maxW {
		im = imaging.Fill(im, maxW, maxW*9/16, imaging.Center, imaging.Lanczos)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return SaveResult{}, err
	}

	dst := filepath.Join(dir, name+".jpg")
	if err := imaging.Save(im, dst, imaging.JPEGQuality(85)); err != nil {
		return SaveResult{}, fmt.Errorf("save cover: %w", err)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		return SaveResult{}, err
	}
	h := sha256.Sum256(b)
	return SaveResult{
		Path:   dst,
		Hash:   hex.EncodeToString(h[:]),
		Width:  im.Bounds().Dx(),
		Height: im.Bounds().Dy(),
	}, nil
}
