package repositories

import "context"

// AudioConfig describes the fixed capture format.
type AudioConfig struct {
	SampleRate    int `json:"sample_rate"`
	Channels      int `json:"channels"`
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultAudioConfig is the only capture format the session uses:
// 16kHz mono 16-bit PCM.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:    16000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// Recorder abstracts microphone capture. The microphone is an exclusive
// resource: at most one capture runs at a time, enforced by the session
// state machine rather than by the recorder itself.
type Recorder interface {
	// Start begins capturing audio.
	Start(ctx context.Context) error
	// Stop ends the capture and returns the recorded audio as a
	// complete WAV file.
	Stop(ctx context.Context) ([]byte, error)
}

// Permissions abstracts the platform permission dialogs.
type Permissions interface {
	// RequestMicrophone asks for microphone access, returning an error
	// when the user refuses.
	RequestMicrophone(ctx context.Context) error
}
