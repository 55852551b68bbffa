package middleware

import (
	"bytes"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// signatures maps an accepted extension to the leading bytes its content
// must start with. Extensions missing here are never accepted.
var signatures = map[string][][]byte{
	".pdf":  {[]byte("%PDF-")},
	".png":  {{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}},
	".jpg":  {{0xFF, 0xD8, 0xFF}},
	".jpeg": {{0xFF, 0xD8, 0xFF}},
}

const sniffLen = 16

// FileUploadValidator rejects a multipart request when any attached file has
// an extension outside allowedExt, exceeds maxSizeMB, or whose first bytes do
// not match the signature of its extension.
func FileUploadValidator(allowedExt []string, maxSizeMB int) fiber.Handler {
	allowed := make(map[string]bool, len(allowedExt))
	for _, e := range allowedExt {
		e = strings.ToLower(strings.TrimSpace(e))
		if _, known := signatures[e]; known {
			allowed[e] = true
		}
	}
	limit := int64(maxSizeMB) << 20

	return func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid multipart form"})
		}
		for _, headers := range form.File {
			for _, fh := range headers {
				if err := checkUpload(fh, allowed, limit); err != nil {
					return c.Status(err.Code).JSON(fiber.Map{"error": err.Message, "file": fh.Filename})
				}
			}
		}
		return c.Next()
	}
}

func checkUpload(fh *multipart.FileHeader, allowed map[string]bool, limit int64) *fiber.Error {
	if fh.Size > limit {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "file too large")
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowed[ext] {
		return fiber.NewError(fiber.StatusBadRequest, "invalid file type")
	}

	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "cannot open file")
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, _ := io.ReadFull(f, head)
	if !matchesSignature(ext, head[:n]) {
		return fiber.NewError(fiber.StatusBadRequest, "invalid file content")
	}
	return nil
}

func matchesSignature(ext string, head []byte) bool {
	for _, sig := range signatures[ext] {
		if bytes.HasPrefix(head, sig) {
			return true
		}
	}
	return false
}
