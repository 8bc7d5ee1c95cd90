package extract

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/efebarandurmaz/medrag/internal/history"
)

// PDF extracts plain text from PDF documents.
type PDF struct{}

func (PDF) Extract(_ context.Context, data []byte) (string, error) {
	if err := requireInput(data, "file"); err != nil {
		return "", err
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", history.NewInputError("file", fmt.Sprintf("not a readable PDF: %v", err))
	}
	var buf bytes.Buffer
	numPages := r.NumPage()
	for i := 0; i < numPages; i++ {
		page := r.Page(i + 1)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i+1, err)
		}
		buf.WriteString(text)
		if i < numPages-1 {
			buf.WriteByte('\n')
		}
	}
	return requireText(buf.String(), "file", "no text detected in PDF")
}

var _ Extractor = PDF{}
