package voice

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-command-gateway/internal/utterance"
)

const (
	// DefaultInactivityTimeout is how long speech may pause before the pending utterance is finalized
	DefaultInactivityTimeout = 5 * time.Second
	// DefaultRestartDelay is the back-off before restarting after a recognition error
	DefaultRestartDelay = 300 * time.Millisecond
	// DefaultFinalGrace bounds how long a graceful stop waits for the trailing final result
	DefaultFinalGrace = 2 * time.Second
)

const (
	triggerFinal      = "final"
	triggerInactivity = "inactivity"
)

// Options configures a Controller
type Options struct {
	InactivityTimeout time.Duration
	CommandDebounce   time.Duration
	RestartDelay      time.Duration
	FinalGrace        time.Duration

	// EventBuffer is the default channel size for Subscribe
	EventBuffer int

	Now func() time.Time
	// AfterFunc schedules the restart and grace timers. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Timer

	Logger   *zerolog.Logger
	Observer Observer
}

// DefaultOptions returns the production timings
func DefaultOptions() Options {
	return Options{
		InactivityTimeout: DefaultInactivityTimeout,
		CommandDebounce:   DefaultCommandDebounce,
		RestartDelay:      DefaultRestartDelay,
		FinalGrace:        DefaultFinalGrace,
		EventBuffer:       64,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.InactivityTimeout <= 0 {
		o.InactivityTimeout = d.InactivityTimeout
	}
	if o.CommandDebounce <= 0 {
		o.CommandDebounce = d.CommandDebounce
	}
	if o.RestartDelay < 0 {
		o.RestartDelay = d.RestartDelay
	}
	if o.FinalGrace <= 0 {
		o.FinalGrace = d.FinalGrace
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = d.EventBuffer
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.AfterFunc == nil {
		o.AfterFunc = func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		}
	}
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
	return o
}

// Timer is a pending callback that can be cancelled
type Timer interface {
	Stop() bool
}

type controlFlags struct {
	listening        bool
	userPaused       bool
	ttsActive        bool
	restarting       bool
	suppressCommands bool
}

type session struct {
	id        uint64
	startedAt time.Time
	active    bool
}

// pendingUtterance is the transcript bookkeeping of the current session
type pendingUtterance struct {
	lastPartial      string
	lastNonEmpty     string
	lastSpeech       time.Time
	lastCommandAt    time.Time
	lastNonCommandAt time.Time
}

// Controller arbitrates between navigation commands and free-form queries for
// one speaker. All state is owned by the goroutine running Run; the exported
// methods post messages to it and are safe for concurrent use.
type Controller struct {
	source    TranscriptSource
	opts      Options
	logger    zerolog.Logger
	obs       Observer
	now       func() time.Time
	afterFunc func(time.Duration, func()) Timer

	mail    *mailbox
	hub     *hub
	slots   *Slots
	done    chan struct{}
	running atomic.Bool

	// owned by the run goroutine
	ctx            context.Context
	state          State
	flags          controlFlags
	session        session
	nextID         uint64
	attempt        uint64
	pending        pendingUtterance
	debouncer      *Debouncer
	stopOnFinal    bool
	gracefulReason StopReason
	graceTimer     Timer
	restartGen     uint64
	restartTimer   Timer
}

// NewController creates a controller driving source. Call Run to start processing.
func NewController(source TranscriptSource, opts Options) *Controller {
	opts = opts.withDefaults()

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Controller{
		source: source,
		opts:   opts,
		logger: logger.With().Str("component", "voice_controller").Logger(),
		obs:    opts.Observer,
		now:    opts.Now,
		afterFunc: opts.AfterFunc,
		mail:      newMailbox(),
		hub:       newHub(),
		slots:     &Slots{},
		done:      make(chan struct{}),
		state:     StateIdle,
		debouncer: NewDebouncer(opts.CommandDebounce),
	}
}

// Run processes control calls and transcript events until ctx is cancelled.
// On return any active session is force-stopped and subscriber channels are closed.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("voice controller is already running")
	}
	c.ctx = ctx
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.mail.signal:
			for _, fn := range c.mail.drain() {
				fn()
			}
		}
	}
}

// Done is closed once Run has returned
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Start begins listening. It is ignored while TTS is active, while the user has
// paused, or while a session is already starting or active.
func (c *Controller) Start() error {
	return c.call(c.start)
}

// Stop ends listening for the given reason. A graceful stop (force false) lets
// the recognizer deliver a trailing final result before the session ends.
func (c *Controller) Stop(reason StopReason, force bool) error {
	return c.call(func() { c.stop(reason, force) })
}

// Pause stops listening on the user's behalf. Nothing restarts until ResumeAfterUserPause.
func (c *Controller) Pause() error {
	return c.Stop(StopUserPause, true)
}

// ResumeAfterUserPause clears the user pause and starts listening
func (c *Controller) ResumeAfterUserPause() error {
	return c.call(c.resume)
}

// SetTTSActive opens or closes the TTS gate. Opening it force-stops listening;
// closing it never restarts listening by itself.
func (c *Controller) SetTTSActive(active bool) error {
	return c.call(func() { c.setTTSActive(active) })
}

// Tick drives the inactivity watchdog. Call it at audio-buffer cadence; it never blocks.
func (c *Controller) Tick() {
	select {
	case <-c.done:
		return
	default:
	}
	c.mail.push(c.tick)
}

// Snapshot returns a copy of the current controller state
func (c *Controller) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := c.call(func() {
		snap = Snapshot{
			State:            c.state,
			SessionID:        c.session.id,
			SessionActive:    c.session.active,
			Listening:        c.flags.listening,
			UserPaused:       c.flags.userPaused,
			TTSActive:        c.flags.ttsActive,
			Restarting:       c.flags.restarting,
			SuppressCommands: c.flags.suppressCommands,
			LastPartial:      c.pending.lastPartial,
			LastSpeech:       c.pending.lastSpeech,
			ErrorMessage:     c.slots.ErrorMessage(),
		}
	})
	return snap, err
}

// State returns the current state, or StateIdle once the controller is closed
func (c *Controller) State() State {
	snap, err := c.Snapshot()
	if err != nil {
		return StateIdle
	}
	return snap.State
}

// Subscribe returns a channel of controller events and a function to cancel the
// subscription. A buffer of zero uses the configured default.
func (c *Controller) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = c.opts.EventBuffer
	}
	return c.hub.subscribe(buffer)
}

// Slots returns the one-shot command and query slots
func (c *Controller) Slots() *Slots {
	return c.slots
}

// call runs fn on the controller goroutine and waits for it
func (c *Controller) call(fn func()) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	reply := make(chan struct{})
	c.mail.push(func() {
		fn()
		close(reply)
	})

	select {
	case <-reply:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *Controller) start() {
	switch {
	case c.flags.ttsActive:
		c.logger.Debug().Msg("Start ignored while TTS is active")
		return
	case c.flags.userPaused:
		c.logger.Debug().Msg("Start ignored while user paused")
		return
	case c.state == StateListening || c.state == StateStarting:
		return
	}

	c.cancelRestart()
	if c.session.active {
		// a graceful stop is still draining
		c.endSession(StopManual)
		c.releaseSource(true)
	}

	c.slots.setError("")
	c.attempt++
	attempt := c.attempt
	c.setState(StateStarting)

	ctx := c.ctx
	go func() {
		perm := c.source.RequestPermission(ctx)
		c.mail.push(func() { c.onPermission(attempt, perm) })
	}()
}

func (c *Controller) onPermission(attempt uint64, perm Permission) {
	if attempt != c.attempt || c.state != StateStarting {
		c.logger.Debug().Str("permission", perm.String()).Msg("Dropping superseded permission result")
		return
	}
	if perm != PermissionGranted {
		c.failStart(&PermissionError{Status: perm}, "permission")
		return
	}
	c.beginSession()
}

func (c *Controller) beginSession() {
	c.nextID++
	id := c.nextID
	c.session = session{id: id, startedAt: c.now(), active: true}
	c.pending = pendingUtterance{}
	c.debouncer.Reset()
	c.flags.suppressCommands = false
	c.stopOnFinal = false

	deliver := func(ev TranscriptEvent) {
		c.mail.push(func() { c.onTranscript(id, ev) })
	}
	if err := c.source.Start(c.ctx, deliver); err != nil {
		c.session.active = false
		c.failStart(&SessionStartError{Err: err}, "session_start")
		return
	}

	c.flags.listening = true
	c.obs.SessionStarted(id)
	c.logger.Info().Uint64("session_id", id).Msg("Listening session started")
	c.setState(StateListening)
}

func (c *Controller) failStart(err error, kind string) {
	c.slots.setError(err.Error())
	c.obs.StartFailed(kind)
	c.logger.Warn().Err(err).Str("type", kind).Msg("Failed to start listening")
	c.flags.listening = false
	c.publish(Event{Kind: EventError, Err: err, Text: err.Error()})
	c.setState(StateIdle)
}

func (c *Controller) onTranscript(id uint64, ev TranscriptEvent) {
	if !c.session.active || id != c.session.id {
		c.obs.StaleEventDropped()
		c.logger.Debug().
			Uint64("event_session_id", id).
			Uint64("session_id", c.session.id).
			Str("kind", ev.Kind.String()).
			Msg("Dropping event from stale session")
		return
	}

	switch ev.Kind {
	case TranscriptPartial, TranscriptFinal:
		final := ev.Kind == TranscriptFinal
		if strings.TrimSpace(ev.Text) != "" {
			c.publish(Event{Kind: EventTranscript, Text: ev.Text, Final: final, SessionID: id})
		}
		c.handleTranscript(ev.Text, final, triggerFinal)
		if !final {
			return
		}
		switch {
		case c.stopOnFinal:
			c.stop(c.gracefulReason, true)
		case ev.Done:
			c.stop(StopFinal, true)
		}
	case TranscriptError:
		c.onRecognitionError(ev.Err)
	case TranscriptSilenceTimeout:
		c.finalizeOnSilence()
	}
}

// handleTranscript classifies one fragment and emits at most one command and at most one query
func (c *Controller) handleTranscript(text string, isFinal bool, trigger string) {
	now := c.now()
	trimmed := strings.TrimSpace(text)
	cls := utterance.Classify(text)

	if trimmed != "" {
		c.pending.lastSpeech = now
		c.pending.lastPartial = text
		c.pending.lastNonEmpty = text
	}

	if cls.HasCommand {
		c.pending.lastCommandAt = now
		c.acceptCommand(cls.Command, now)
	} else if trimmed != "" {
		c.pending.lastNonCommandAt = now
	}

	if !isFinal {
		return
	}
	if trimmed != "" && !cls.HasCommand {
		c.emitQuery(text, trigger)
	}
	c.debouncer.Reset()
	c.pending.lastPartial = ""
	c.pending.lastNonEmpty = ""
	c.pending.lastNonCommandAt = time.Time{}
}

func (c *Controller) acceptCommand(kind utterance.CommandKind, now time.Time) {
	if c.flags.suppressCommands {
		c.obs.CommandSuppressed("suppressed")
		return
	}
	if !c.debouncer.Accept(kind, now) {
		c.obs.CommandSuppressed("debounce")
		c.logger.Debug().Str("command", kind.String()).Msg("Debounced repeated command")
		return
	}

	c.pending.lastPartial = ""
	c.pending.lastNonCommandAt = time.Time{}

	c.slots.setCommand(kind)
	c.obs.CommandEmitted(kind)
	c.logger.Info().
		Str("command", kind.String()).
		Uint64("session_id", c.session.id).
		Msg("Command detected")
	c.publish(Event{Kind: EventCommand, Command: kind, SessionID: c.session.id})
}

func (c *Controller) emitQuery(text, trigger string) {
	c.slots.setQuery(text)
	c.obs.QueryEmitted(trigger)
	c.logger.Info().
		Str("trigger", trigger).
		Uint64("session_id", c.session.id).
		Int("length", len(text)).
		Msg("Query detected")
	c.publish(Event{Kind: EventQuery, Text: text, SessionID: c.session.id})
}

func (c *Controller) tick() {
	if c.state != StateListening || !c.session.active || c.pending.lastSpeech.IsZero() {
		return
	}
	if c.now().Sub(c.pending.lastSpeech) < c.opts.InactivityTimeout {
		return
	}
	c.logger.Debug().Uint64("session_id", c.session.id).Msg("Inactivity timeout reached")
	c.finalizeOnSilence()
}

// finalizeOnSilence turns a trailing non-command fragment into a query, then
// force-stops with the inactivity reason. No command is accepted afterwards.
func (c *Controller) finalizeOnSilence() {
	if c.state != StateListening {
		return
	}

	p := c.pending
	if !p.lastNonCommandAt.IsZero() && p.lastNonCommandAt.After(p.lastCommandAt) {
		text := p.lastNonEmpty
		if strings.TrimSpace(text) == "" {
			text = p.lastPartial
		}
		if strings.TrimSpace(text) != "" {
			c.handleTranscript(text, true, triggerInactivity)
		}
	}

	c.flags.suppressCommands = true
	c.stop(StopInactivity, true)
}

func (c *Controller) onRecognitionError(err error) {
	rerr := &RecognitionError{SessionID: c.session.id, Err: err}

	if c.stopOnFinal {
		// the requested stop ends the task; finish it with its own reason
		c.obs.RecognitionError(true)
		c.logger.Debug().Err(rerr).Str("reason", string(c.gracefulReason)).Msg("Recognition error while stopping")
		c.stop(c.gracefulReason, true)
		return
	}
	if c.flags.ttsActive || c.flags.userPaused || c.state != StateListening {
		c.obs.RecognitionError(true)
		c.logger.Debug().Err(rerr).Msg("Ignoring recognition error while gated")
		return
	}

	c.obs.RecognitionError(false)
	c.logger.Warn().Err(rerr).Msg("Recognition error, restarting")
	c.stop(StopRecognitionError, true)
}

func (c *Controller) stop(reason StopReason, force bool) {
	// any in-flight permission result is now stale
	c.attempt++
	c.cancelRestart()

	if c.session.active && !force {
		if reason == StopUserPause {
			c.flags.userPaused = true
		}
		if c.stopOnFinal {
			return
		}
		c.stopOnFinal = true
		c.gracefulReason = reason
		c.flags.listening = false
		c.releaseSource(false)
		c.setState(StateStoppingForRestart)

		id := c.session.id
		c.graceTimer = c.afterFunc(c.opts.FinalGrace, func() {
			c.mail.push(func() { c.onGraceExpired(id) })
		})
		return
	}

	if c.session.active {
		c.endSession(reason)
		c.releaseSource(true)
	}
	c.flags.listening = false
	c.settle(reason)
}

func (c *Controller) onGraceExpired(id uint64) {
	if !c.session.active || c.session.id != id || !c.stopOnFinal {
		return
	}
	c.logger.Debug().Uint64("session_id", id).Msg("No final result before grace expired")
	c.stop(c.gracefulReason, true)
}

func (c *Controller) endSession(reason StopReason) {
	c.session.active = false
	c.stopOnFinal = false
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	c.obs.SessionEnded(c.session.id, reason, c.now().Sub(c.session.startedAt))
	c.logger.Info().
		Uint64("session_id", c.session.id).
		Str("reason", string(reason)).
		Msg("Listening session ended")
}

func (c *Controller) releaseSource(force bool) {
	if err := c.source.Stop(force); err != nil {
		c.logger.Warn().Err(err).Bool("force", force).Msg("Error stopping transcript source")
	}
}

// settle moves to the resting state for reason, scheduling a restart when allowed
func (c *Controller) settle(reason StopReason) {
	switch {
	case reason == StopUserPause:
		c.flags.userPaused = true
		c.setState(StateUserPaused)
	case c.flags.userPaused:
		c.setState(StateUserPaused)
	case reason == StopTTS || c.flags.ttsActive:
		c.setState(StateSuppressed)
	case reason.restarts():
		c.flags.restarting = true
		c.setState(StateStoppingForRestart)
		c.scheduleRestart(reason)
	default:
		c.setState(StateIdle)
	}
}

func (c *Controller) scheduleRestart(reason StopReason) {
	c.restartGen++
	gen := c.restartGen

	if reason != StopRecognitionError || c.opts.RestartDelay == 0 {
		c.restart(gen, reason)
		return
	}
	c.restartTimer = c.afterFunc(c.opts.RestartDelay, func() {
		c.mail.push(func() { c.restart(gen, reason) })
	})
}

// restart runs when a scheduled restart is due. Flags are re-read here since
// they may have changed during the delay.
func (c *Controller) restart(gen uint64, reason StopReason) {
	if gen != c.restartGen || c.state != StateStoppingForRestart {
		return
	}
	c.restartTimer = nil
	c.flags.restarting = false

	switch {
	case c.flags.userPaused:
		c.setState(StateUserPaused)
		return
	case c.flags.ttsActive:
		c.setState(StateSuppressed)
		return
	}

	c.obs.Restarted(reason)
	c.logger.Debug().Str("reason", string(reason)).Msg("Restarting listening")
	c.start()
}

func (c *Controller) cancelRestart() {
	c.restartGen++
	if c.restartTimer != nil {
		c.restartTimer.Stop()
		c.restartTimer = nil
	}
	c.flags.restarting = false
}

func (c *Controller) setTTSActive(active bool) {
	if !active {
		c.flags.ttsActive = false
		if c.state == StateSuppressed {
			c.setState(StateIdle)
		}
		return
	}

	c.flags.ttsActive = true
	switch c.state {
	case StateListening, StateStarting, StateStoppingForRestart:
		c.stop(StopTTS, true)
	case StateIdle:
		c.setState(StateSuppressed)
	}
}

func (c *Controller) resume() {
	if !c.flags.userPaused {
		c.logger.Debug().Msg("Resume ignored, not paused")
		return
	}
	c.flags.userPaused = false
	if c.flags.ttsActive {
		c.setState(StateSuppressed)
		return
	}
	c.start()
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	prev := c.state
	c.state = s
	c.logger.Debug().Str("from", prev.String()).Str("to", s.String()).Msg("Voice state changed")
	c.publish(Event{Kind: EventState, State: s, SessionID: c.session.id})
}

func (c *Controller) publish(ev Event) {
	ev.At = c.now()
	if dropped := c.hub.publish(ev); dropped > 0 {
		c.logger.Warn().Int("subscribers", dropped).Str("event", ev.Kind.String()).Msg("Subscriber buffer full, event dropped")
	}
}

func (c *Controller) shutdown() {
	c.cancelRestart()
	if c.session.active {
		c.endSession(StopManual)
		c.releaseSource(true)
	}
	c.flags.listening = false
	c.setState(StateIdle)
	c.hub.close()
	close(c.done)
}
