package repositories

import "context"

// Speaker abstracts text-to-speech playback.
type Speaker interface {
	// Speak synthesizes and plays the text, returning once playback has
	// finished or failed.
	Speak(ctx context.Context, text string) error
	// Stop cancels any in-flight playback. It is fire-and-forget: the
	// caller does not wait for confirmation.
	Stop()
}
