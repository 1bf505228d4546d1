package voice

import (
	"context"
)

// DeliverFunc receives transcript events from a TranscriptSource. It never blocks
// and may be called from any goroutine.
type DeliverFunc func(TranscriptEvent)

// TranscriptSource is the capture + recognition device the Controller drives
type TranscriptSource interface {
	// RequestPermission asks for speech recognition permission. It may block on the user.
	RequestPermission(ctx context.Context) Permission

	// Start begins capture and recognition, delivering results until Stop.
	// On error no resources may be left acquired.
	Start(ctx context.Context, deliver DeliverFunc) error

	// Stop ends the audio path. With force the in-flight recognition is cancelled
	// and all resources are released before Stop returns; without force the source
	// may deliver a trailing final result first.
	Stop(force bool) error
}
