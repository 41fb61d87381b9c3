package audio

import (
	"context"
	"fmt"

	"github.com/tripot/companion/domain/repositories"
)

// StaticPermissions answers permission requests from configuration.
// The deployable device build binds the platform dialog instead; this
// implementation serves the daemon and tests.
type StaticPermissions struct {
	microphoneGranted bool
}

var _ repositories.Permissions = (*StaticPermissions)(nil)

// NewStaticPermissions creates a permission source with a fixed answer.
func NewStaticPermissions(microphoneGranted bool) *StaticPermissions {
	return &StaticPermissions{microphoneGranted: microphoneGranted}
}

// RequestMicrophone reports the configured decision.
func (p *StaticPermissions) RequestMicrophone(ctx context.Context) error {
	if !p.microphoneGranted {
		return fmt.Errorf("microphone access refused")
	}
	return nil
}
