package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrOCRUnavailable is returned when the tesseract binary cannot be run.
var ErrOCRUnavailable = errors.New("tesseract is not installed or not on PATH")

type runFunc func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)

// Tesseract runs the tesseract binary over an image read from stdin.
type Tesseract struct {
	binary   string
	language string
	run      runFunc
}

// NewTesseract creates an OCR extractor. Empty values default to
// "tesseract" and "eng".
func NewTesseract(binary, language string) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &Tesseract{binary: binary, language: language, run: runCommand}
}

func (t *Tesseract) Extract(ctx context.Context, data []byte) (string, error) {
	if err := requireInput(data, "file"); err != nil {
		return "", err
	}
	out, err := t.run(ctx, t.binary, []string{"stdin", "stdout", "-l", t.language}, data)
	if err != nil {
		var notFound *exec.Error
		if errors.As(err, &notFound) {
			return "", fmt.Errorf("%w: %v", ErrOCRUnavailable, err)
		}
		return "", fmt.Errorf("running OCR: %w", err)
	}
	return requireText(string(out), "file", "no text detected in image")
}

func runCommand(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

var _ Extractor = (*Tesseract)(nil)
