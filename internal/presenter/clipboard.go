package presenter

import (
	"errors"
	"fmt"

	"github.com/atotto/clipboard"

	"github.com/bizmatters/promptlens/internal/models"
)

var (
	ErrNothingToCopy        = errors.New("no inferred prompt to copy")
	ErrClipboardUnsupported = errors.New("clipboard is not available on this system")
)

// Clipboard writes text to a clipboard.
type Clipboard interface {
	WriteText(text string) error
}

// SystemClipboard is the host clipboard.
type SystemClipboard struct{}

var clipboardWrite = clipboard.WriteAll

func (SystemClipboard) WriteText(text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnsupported
	}
	return clipboardWrite(text)
}

// CopyPrompt writes the inferred prompt of result verbatim to cb.
func CopyPrompt(cb Clipboard, result *models.ReverseResponse) error {
	if result == nil {
		return ErrNothingToCopy
	}
	if err := cb.WriteText(result.InferredPrompt); err != nil {
		return fmt.Errorf("copy failed: %w", err)
	}
	return nil
}
