package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tripot/companion/domain/repositories"
)

const (
	defaultAPIBaseURL   = "https://api.elevenlabs.io/v1"
	defaultVoiceID      = "21m00Tcm4TlvDq8ikWAM" // Rachel voice
	defaultModelID      = "eleven_multilingual_v2"
	defaultOutputFormat = "pcm_16000"
	defaultChunkSize    = 1024
	defaultStability    = 0.5
	defaultClarity      = 0.75
)

// ElevenLabsConfig configures the ElevenLabsSpeaker. APIKey is
// required; everything else falls back to defaults.
type ElevenLabsConfig struct {
	APIKey       string
	APIBaseURL   string
	VoiceID      string
	ModelID      string
	OutputFormat string
	ChunkSize    int
	Stability    float64
	Clarity      float64
}

// NewElevenLabsConfigFromEnv reads the speaker configuration from
// environment variables.
func NewElevenLabsConfigFromEnv() ElevenLabsConfig {
	return ElevenLabsConfig{
		APIKey:       os.Getenv("ELEVEN_LABS_API_KEY"),
		APIBaseURL:   os.Getenv("ELEVEN_LABS_API_BASE_URL"),
		VoiceID:      os.Getenv("ELEVEN_LABS_VOICE_ID"),
		ModelID:      os.Getenv("ELEVEN_LABS_MODEL_ID"),
		OutputFormat: os.Getenv("ELEVEN_LABS_OUTPUT_FORMAT"),
	}
}

// ElevenLabsSpeaker synthesizes speech through the Eleven Labs
// streaming API and pipes the audio to a playback sink. Speak blocks
// until the whole stream has been written; Stop cancels an in-flight
// stream without waiting.
type ElevenLabsSpeaker struct {
	apiKey       string
	apiBaseURL   string
	voiceID      string
	modelID      string
	outputFormat string
	chunkSize    int
	stability    float64
	clarity      float64

	sink   io.Writer
	client *http.Client
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

var _ repositories.Speaker = (*ElevenLabsSpeaker)(nil)

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

type synthesizeRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// NewElevenLabsSpeaker creates a speaker that plays through sink.
func NewElevenLabsSpeaker(config ElevenLabsConfig, sink io.Writer, logger *zap.Logger) (*ElevenLabsSpeaker, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("eleven labs API key is required")
	}
	if config.Stability < 0 || config.Stability > 1 {
		return nil, fmt.Errorf("stability must be between 0 and 1, got %f", config.Stability)
	}
	if config.Clarity < 0 || config.Clarity > 1 {
		return nil, fmt.Errorf("clarity must be between 0 and 1, got %f", config.Clarity)
	}

	s := &ElevenLabsSpeaker{
		apiKey:       config.APIKey,
		apiBaseURL:   config.APIBaseURL,
		voiceID:      config.VoiceID,
		modelID:      config.ModelID,
		outputFormat: config.OutputFormat,
		chunkSize:    config.ChunkSize,
		stability:    config.Stability,
		clarity:      config.Clarity,
		sink:         sink,
		client:       &http.Client{Timeout: 60 * time.Second},
		logger:       logger,
	}
	if s.apiBaseURL == "" {
		s.apiBaseURL = defaultAPIBaseURL
	}
	if s.voiceID == "" {
		s.voiceID = defaultVoiceID
	}
	if s.modelID == "" {
		s.modelID = defaultModelID
	}
	if s.outputFormat == "" {
		s.outputFormat = defaultOutputFormat
	}
	if s.chunkSize <= 0 {
		s.chunkSize = defaultChunkSize
	}
	if s.stability == 0 {
		s.stability = defaultStability
	}
	if s.clarity == 0 {
		s.clarity = defaultClarity
	}
	return s, nil
}

// Speak synthesizes text and streams the audio to the sink, returning
// when playback input is exhausted, the context ends, or Stop is called.
func (s *ElevenLabsSpeaker) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text cannot be empty")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
		s.mu.Unlock()
	}()

	requestBody, err := json.Marshal(synthesizeRequest{
		Text:    text,
		ModelID: s.modelID,
		VoiceSettings: voiceSettings{
			Stability:       s.stability,
			SimilarityBoost: s.clarity,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s",
		s.apiBaseURL, s.voiceID, s.outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create synthesis request: %w", err)
	}

	accept := "audio/mpeg"
	if strings.HasPrefix(s.outputFormat, "pcm") {
		accept = "audio/pcm"
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.apiKey)

	s.logger.Debug("synthesizing speech",
		zap.String("voiceID", s.voiceID),
		zap.Int("textLength", len(text)))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("synthesis API returned %d: %s", resp.StatusCode, string(errorBody))
	}

	buffer := make([]byte, s.chunkSize)
	totalBytes := 0
	for {
		n, err := resp.Body.Read(buffer)
		if n > 0 {
			totalBytes += n
			if _, werr := s.sink.Write(buffer[:n]); werr != nil {
				return fmt.Errorf("playback write failed: %w", werr)
			}
		}
		if err == io.EOF {
			s.logger.Debug("playback finished", zap.Int("totalBytes", totalBytes))
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Debug("playback cancelled", zap.Int("totalBytes", totalBytes))
				return nil
			}
			return fmt.Errorf("failed reading audio stream: %w", err)
		}
	}
}

// Stop cancels any in-flight playback. Fire-and-forget.
func (s *ElevenLabsSpeaker) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
