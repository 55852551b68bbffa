package docs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	ErrNoText       = errors.New("no extractable text")
	ErrTooManyPages = errors.New("document has too many pages")
	ErrUnreadable   = errors.New("unreadable pdf")
)

type Extracted struct {
	Text  string
	Pages int
}

// ExtractPDF returns the plain text of every page. Documents longer than
// maxPages are rejected before any page is read; maxPages <= 0 disables the cap.
func ExtractPDF(ctx context.Context, r io.ReaderAt, size int64, maxPages int) (out Extracted, err error) {
	// the parser panics on some malformed xref tables
	defer func() {
		if p := recover(); p != nil {
			out, err = Extracted{}, fmt.Errorf("%w: %v", ErrUnreadable, p)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return Extracted{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	total := reader.NumPage()
	if maxPages > 0 && total > maxPages {
		return Extracted{Pages: total}, ErrTooManyPages
	}

	var b strings.Builder
	for pageNum := 1; pageNum <= total; pageNum++ {
		select {
		case <-ctx.Done():
			return Extracted{}, ctx.Err()
		default:
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// one bad page should not sink the document
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}

	if b.Len() == 0 {
		return Extracted{Pages: total}, ErrNoText
	}
	return Extracted{Text: b.String(), Pages: total}, nil
}
