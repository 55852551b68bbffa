package docs

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF writes an uncompressed PDF with one Helvetica text line per page.
func buildPDF(pages ...string) []byte {
	var b bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, b.Len())
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	b.WriteString("%PDF-1.4\n")
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	for i, text := range pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, o := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", o)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return b.Bytes()
}

func TestExtractPDFReadsEveryPage(t *testing.T) {
	raw := buildPDF("Nephron anatomy", "Loop of Henle")
	ex, err := ExtractPDF(context.Background(), bytes.NewReader(raw), int64(len(raw)), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, ex.Pages)
	assert.Contains(t, ex.Text, "Nephron anatomy")
	assert.Contains(t, ex.Text, "Loop of Henle")
}

func TestExtractPDFPageCap(t *testing.T) {
	raw := buildPDF("a", "b", "c")
	ex, err := ExtractPDF(context.Background(), bytes.NewReader(raw), int64(len(raw)), 2)
	assert.ErrorIs(t, err, ErrTooManyPages)
	assert.Equal(t, 3, ex.Pages)

	_, err = ExtractPDF(context.Background(), bytes.NewReader(raw), int64(len(raw)), 0)
	assert.NoError(t, err)
}

func TestExtractPDFWithoutText(t *testing.T) {
	raw := buildPDF("")
	_, err := ExtractPDF(context.Background(), bytes.NewReader(raw), int64(len(raw)), 10)
	assert.ErrorIs(t, err, ErrNoText)
}

func TestExtractPDFHonorsCancellation(t *testing.T) {
	raw := buildPDF("Glomerulus")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ExtractPDF(ctx, bytes.NewReader(raw), int64(len(raw)), 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractPDFRejectsGarbage(t *testing.T) {
	raw := []byte("%PDF-1.4\nthis is not a pdf")
	_, err := ExtractPDF(context.Background(), bytes.NewReader(raw), int64(len(raw)), 10)
	assert.ErrorIs(t, err, ErrUnreadable)
}
