package entity

import (
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrAudioFetchFailed    = errors.New("audio fetch failed")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrGenerationFailed    = errors.New("generation failed")
	ErrDuplicateRecording  = errors.New("recording already exists")
)

// Fixed messages sent back to the sender when a pipeline step fails.
const (
	MessageAudioFetchFailed    = "音声の取得に失敗しました。"
	MessageTranscriptionFailed = "文字起こしに失敗しました。"
	MessageGenerationFailed    = "テキストの補正に失敗しました。"
)

type (
	User struct {
		ID          int
		LineUserID  string
		DisplayName string
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	Recording struct {
		ID            int
		UserID        int
		Filename      string
		Transcription string
		CreatedAt     time.Time
		RecordedAt    time.Time
	}

	// RecordingView is a Recording joined with its owner.
	RecordingView struct {
		Recording
		LineUserID  string
		DisplayName string
	}

	ListFilter struct {
		LineUserID string
	}
)
