package audio

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection
	SilenceFrames   int     // Consecutive silent frames that end speech
}

// DefaultVADConfig returns a default VAD configuration
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   10,
	}
}

// Activity is the result of measuring one frame
type Activity struct {
	Level         float64 // RMS of the frame
	Speaking      bool
	SpeechStarted bool
	SpeechEnded   bool
}

// VADDetector is an energy-based speech detector over PCM16 frames.
// It is not safe for concurrent use.
type VADDetector struct {
	config         VADConfig
	silenceCounter int
	isSpeaking     bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	cfg := *config
	if cfg.SilenceFrames < 1 {
		cfg.SilenceFrames = 1
	}
	return &VADDetector{config: cfg}
}

// ProcessFrame measures a frame of samples and updates speaking state
func (v *VADDetector) ProcessFrame(samples []int16) Activity {
	act := Activity{Level: CalculateRMS(samples)}

	if act.Level > v.config.EnergyThreshold {
		v.silenceCounter = 0
		if !v.isSpeaking {
			act.SpeechStarted = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			act.SpeechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	act.Speaking = v.isSpeaking
	return act
}

// Process measures a PCM16LE frame
func (v *VADDetector) Process(pcm []byte) Activity {
	return v.ProcessFrame(BytesToSamples(pcm))
}

// Reset resets the VAD detector state
func (v *VADDetector) Reset() {
	v.silenceCounter = 0
	v.isSpeaking = false
}

// IsSpeaking returns whether speech is currently detected
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}
