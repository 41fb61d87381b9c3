package tts

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/tripot/companion/domain/repositories"
)

// ConsoleSpeaker writes spoken text to a terminal instead of playing
// audio. Used when no synthesis backend is configured.
type ConsoleSpeaker struct {
	out io.Writer
}

var _ repositories.Speaker = (*ConsoleSpeaker)(nil)

// NewConsoleSpeaker creates a speaker that prints to out.
func NewConsoleSpeaker(out io.Writer) *ConsoleSpeaker {
	return &ConsoleSpeaker{out: out}
}

// Speak prints the text and returns immediately.
func (s *ConsoleSpeaker) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text cannot be empty")
	}
	fmt.Fprintf(s.out, "\n[speaking] %s\n", text)
	return nil
}

// Stop is a no-op; printed text cannot be recalled.
func (s *ConsoleSpeaker) Stop() {}
