package stt

import (
	"context"
	"sync"

	"github.com/lexiqai/voice-command-gateway/internal/voice"
)

// ScriptedSource is a voice.TranscriptSource driven by the caller. The replay
// tool and tests push recognizer results into it with Emit.
type ScriptedSource struct {
	mu          sync.Mutex
	permission  voice.Permission
	startErr    error
	deliver     voice.DeliverFunc
	lastPartial string
	starts      int
	stops       int
	audioBytes  int
}

// NewScriptedSource creates a source that grants permission and starts cleanly
func NewScriptedSource() *ScriptedSource {
	return &ScriptedSource{permission: voice.PermissionGranted}
}

// SetPermission sets the answer to future permission requests
func (s *ScriptedSource) SetPermission(p voice.Permission) {
	s.mu.Lock()
	s.permission = p
	s.mu.Unlock()
}

// SetStartError makes future starts fail with err; nil restores normal starts
func (s *ScriptedSource) SetStartError(err error) {
	s.mu.Lock()
	s.startErr = err
	s.mu.Unlock()
}

func (s *ScriptedSource) RequestPermission(ctx context.Context) voice.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission
}

func (s *ScriptedSource) Start(ctx context.Context, deliver voice.DeliverFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.deliver = deliver
	s.lastPartial = ""
	s.starts++
	return nil
}

// Stop ends the session. Without force the last partial is delivered as the
// trailing final, the way a recognizer finalizes when its audio ends.
func (s *ScriptedSource) Stop(force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliver == nil {
		return nil
	}
	if !force {
		s.deliver(voice.Final(s.lastPartial))
	}
	s.deliver = nil
	s.lastPartial = ""
	s.stops++
	return nil
}

// Emit delivers ev to the running session. It reports false when no session is running.
func (s *ScriptedSource) Emit(ev voice.TranscriptEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliver == nil {
		return false
	}
	switch ev.Kind {
	case voice.TranscriptPartial:
		s.lastPartial = ev.Text
	case voice.TranscriptFinal:
		s.lastPartial = ""
	}
	s.deliver(ev)
	return true
}

// Write accepts audio while a session is running and discards it
func (s *ScriptedSource) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliver == nil {
		return ErrNotActive
	}
	s.audioBytes += len(pcm)
	return nil
}

// AudioBytes returns how many audio bytes were accepted
func (s *ScriptedSource) AudioBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioBytes
}

// Active reports whether a session is running
func (s *ScriptedSource) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliver != nil
}

// Counts returns how many sessions were started and stopped
func (s *ScriptedSource) Counts() (starts, stops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops
}
