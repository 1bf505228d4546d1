package gateway

import (
	"context"
	"sync"

	"github.com/lexiqai/voice-command-gateway/internal/stt"
	"github.com/lexiqai/voice-command-gateway/internal/voice"
)

// Source is a recognizer that takes microphone audio from the connection
type Source interface {
	voice.TranscriptSource
	stt.AudioSink
}

// permissionSource combines the listener's device permission, sent with
// "start", with the recognizer's own availability. Both must be granted.
type permissionSource struct {
	Source

	mu     sync.Mutex
	device voice.Permission
}

func newPermissionSource(src Source) *permissionSource {
	return &permissionSource{Source: src, device: voice.PermissionGranted}
}

func (p *permissionSource) setDevicePermission(perm voice.Permission) {
	p.mu.Lock()
	p.device = perm
	p.mu.Unlock()
}

func (p *permissionSource) RequestPermission(ctx context.Context) voice.Permission {
	p.mu.Lock()
	device := p.device
	p.mu.Unlock()

	if device != voice.PermissionGranted {
		return device
	}
	return p.Source.RequestPermission(ctx)
}
