package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/tripot/companion/domain/repositories"
)

// PCMRecorder drains raw PCM from a capture source into a temporary WAV
// file. The source is whatever the device exposes as a PCM stream; the
// recorder owns only the draining and the WAV framing.
type PCMRecorder struct {
	source io.Reader
	cfg    repositories.AudioConfig
	logger *zap.Logger

	mu        sync.Mutex
	recording bool
	done      chan struct{}
	buf       bytes.Buffer
	readErr   error
}

var _ repositories.Recorder = (*PCMRecorder)(nil)

// NewPCMRecorder creates a recorder for the fixed capture format.
func NewPCMRecorder(source io.Reader, cfg repositories.AudioConfig, logger *zap.Logger) *PCMRecorder {
	return &PCMRecorder{
		source: source,
		cfg:    cfg,
		logger: logger,
	}
}

// Start begins draining the capture source.
func (r *PCMRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return fmt.Errorf("capture already active")
	}
	r.recording = true
	r.buf.Reset()
	r.readErr = nil
	r.done = make(chan struct{})

	go r.drain(r.done)
	return nil
}

// drain copies from the source until the capture stops or the source
// ends. A source error only fails the turn it belongs to.
func (r *PCMRecorder) drain(done chan struct{}) {
	chunk := make([]byte, 4096)
	for {
		select {
		case <-done:
			return
		default:
		}

		n, err := r.source.Read(chunk)
		if n > 0 {
			// A read that was in flight when Stop closed done must not
			// leak into a later capture's buffer.
			r.mu.Lock()
			if r.recording && r.done == done {
				r.buf.Write(chunk[:n])
			}
			r.mu.Unlock()
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			r.mu.Lock()
			r.readErr = err
			r.mu.Unlock()
			r.logger.Warn("capture source read failed", zap.Error(err))
			return
		}
	}
}

// Stop ends the capture, writes the audio through a temporary WAV file
// and returns the file's bytes.
func (r *PCMRecorder) Stop(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil, fmt.Errorf("no capture active")
	}
	r.recording = false
	close(r.done)
	pcm := make([]byte, r.buf.Len())
	copy(pcm, r.buf.Bytes())
	readErr := r.readErr
	r.mu.Unlock()

	if readErr != nil {
		return nil, fmt.Errorf("capture failed: %w", readErr)
	}

	wav := EncodeWAV(pcm, r.cfg)

	file, err := os.CreateTemp("", "voice_recording_*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create capture file: %w", err)
	}
	name := file.Name()
	defer os.Remove(name)

	if _, err := file.Write(wav); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write capture file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize capture file: %w", err)
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture file: %w", err)
	}

	r.logger.Debug("capture finished",
		zap.Int("pcmBytes", len(pcm)),
		zap.Int("wavBytes", len(data)))
	return data, nil
}

// EncodeWAV wraps raw PCM samples in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, cfg repositories.AudioConfig) []byte {
	blockAlign := cfg.Channels * cfg.BitsPerSample / 8
	byteRate := cfg.SampleRate * blockAlign

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(36+len(pcm)))
	out.WriteString("WAVE")

	out.WriteString("fmt ")
	binary.Write(&out, binary.LittleEndian, uint32(16))
	binary.Write(&out, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&out, binary.LittleEndian, uint16(cfg.Channels))
	binary.Write(&out, binary.LittleEndian, uint32(cfg.SampleRate))
	binary.Write(&out, binary.LittleEndian, uint32(byteRate))
	binary.Write(&out, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&out, binary.LittleEndian, uint16(cfg.BitsPerSample))

	out.WriteString("data")
	binary.Write(&out, binary.LittleEndian, uint32(len(pcm)))
	out.Write(pcm)

	return out.Bytes()
}
