// Package extract turns uploaded prescriptions (images, PDFs, audio) into text.
package extract

import (
	"context"
	"strings"

	"github.com/efebarandurmaz/medrag/internal/history"
)

// Extractor converts raw bytes into text. Empty or undetectable text is
// reported as a *history.InputError.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

func requireText(text, field, message string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", history.NewInputError(field, message)
	}
	return text, nil
}

func requireInput(data []byte, field string) error {
	if len(data) == 0 {
		return history.NewInputError(field, "upload is empty")
	}
	return nil
}
