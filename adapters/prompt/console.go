package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tripot/companion/domain/entities"
	"github.com/tripot/companion/domain/repositories"
)

// ConsolePrompter raises the core's blocking dialogs on a terminal.
// The deployable device build binds the platform dialog layer instead.
type ConsolePrompter struct {
	out    io.Writer
	in     *bufio.Scanner
	logger *zap.Logger

	// Dialogs block until answered; serialize them so two prompts never
	// interleave on the same terminal.
	mu sync.Mutex
}

var _ repositories.Prompter = (*ConsolePrompter)(nil)

// NewConsolePrompter creates a prompter reading decisions from in and
// writing dialogs to out.
func NewConsolePrompter(in io.Reader, out io.Writer, logger *zap.Logger) *ConsolePrompter {
	return &ConsolePrompter{
		out:    out,
		in:     bufio.NewScanner(in),
		logger: logger,
	}
}

// Notice shows an acknowledgment message.
func (p *ConsolePrompter) Notice(title, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\n[%s] %s\n", title, message)
}

// PromptScheduledCall asks the three-way conversation-time question and
// blocks for an answer. Unrecognized or missing input counts as a skip.
func (p *ConsolePrompter) PromptScheduledCall(prompt entities.ScheduledCallPrompt) entities.PromptAction {
	p.mu.Lock()
	defer p.mu.Unlock()

	if prompt.ScheduledTime != "" {
		fmt.Fprintf(p.out, "\n[Time for a conversation!] This was scheduled for %s.\n", prompt.ScheduledTime)
	} else {
		fmt.Fprintf(p.out, "\n[Time for a conversation!] Shall we start talking?\n")
	}
	fmt.Fprintf(p.out, "  1) talk now  2) in 10 minutes  3) skip today\n> ")

	if !p.in.Scan() {
		return entities.PromptSkip
	}
	switch strings.TrimSpace(p.in.Text()) {
	case "1":
		return entities.PromptStartNow
	case "2":
		return entities.PromptSnooze
	default:
		return entities.PromptSkip
	}
}
