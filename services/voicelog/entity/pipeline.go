package entity

import "time"

type (
	// AudioEvent is one inbound voice message.
	AudioEvent struct {
		MessageID  string
		LineUserID string
		ReplyToken string
		Timestamp  time.Time
	}

	AudioEventResult struct {
		Recording *Recording
		ReplyText string
		Skipped   bool
	}

	UploadRequest struct {
		Filename    string
		LineUserID  string
		DisplayName string
	}

	// Reply is the two-field object produced by the combined
	// correction-and-reply prompt.
	Reply struct {
		UserText string `json:"user_text"`
		Reply    string `json:"reply"`
	}
)
