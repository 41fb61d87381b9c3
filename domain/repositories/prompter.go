package repositories

import "github.com/tripot/companion/domain/entities"

// Prompter abstracts the blocking user dialogs the core raises. The
// navigation/screen layer supplies the real implementation.
type Prompter interface {
	// Notice shows an acknowledgment dialog and returns when dismissed.
	Notice(title, message string)
	// PromptScheduledCall shows the three-way conversation-time dialog
	// and blocks until the user decides.
	PromptScheduledCall(prompt entities.ScheduledCallPrompt) entities.PromptAction
}
