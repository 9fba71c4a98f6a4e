// Package voice is the audio input boundary: capture an audio blob and turn
// it into a transcript.
package voice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mark3labs/voiceops/internal/logger"
)

var log = logger.Named("voice")

// InputState is the phase of the audio input control.
type InputState int

const (
	StateIdle InputState = iota
	StateRecording
	StateTranscribing
	StateProcessing
)

func (s InputState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateProcessing:
		return "processing"
	default:
		return fmt.Sprintf("InputState(%d)", int(s))
	}
}

// Capture produces one audio blob.
type Capture interface {
	Record(ctx context.Context) (audio []byte, filename string, err error)
}

// Transcriber converts audio to text. *client.Client implements it.
type Transcriber interface {
	TranscribeAudio(ctx context.Context, audio []byte, filename string) (string, error)
}

// FileCapture reads a pre-recorded audio file.
type FileCapture struct {
	Path string
}

// Record implements Capture.
func (f FileCapture) Record(ctx context.Context) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read audio file: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("audio file %s is empty", f.Path)
	}
	return data, filepath.Base(f.Path), nil
}

// Transcribe returns the trimmed transcript of audio, or "" when
// transcription fails. Failures are logged, never returned: an empty
// transcript is rejected downstream like any empty command.
func Transcribe(ctx context.Context, t Transcriber, audio []byte, filename string) string {
	if len(audio) == 0 {
		return ""
	}
	if filename == "" {
		filename = "recording.webm"
	}
	text, err := t.TranscribeAudio(ctx, audio, filename)
	if err != nil {
		log.Warn("Transcription failed: %v", err)
		return ""
	}
	return strings.TrimSpace(text)
}

// Input tracks the input control through record and transcribe.
type Input struct {
	mu    sync.Mutex
	state InputState
}

// State returns the current input state.
func (in *Input) State() InputState {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

// Set moves the input to s.
func (in *Input) Set(s InputState) {
	in.mu.Lock()
	in.state = s
	in.mu.Unlock()
	log.Debug("Input state: %s", s)
}

// Listen records from c and transcribes the result, leaving the input in
// StateProcessing on success so the caller can hand the transcript on, or
// StateIdle when nothing usable was heard.
func (in *Input) Listen(ctx context.Context, c Capture, t Transcriber) (string, error) {
	in.Set(StateRecording)
	audio, name, err := c.Record(ctx)
	if err != nil {
		in.Set(StateIdle)
		return "", err
	}

	in.Set(StateTranscribing)
	text := Transcribe(ctx, t, audio, name)
	if text == "" {
		in.Set(StateIdle)
		return "", nil
	}
	in.Set(StateProcessing)
	return text, nil
}
