package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xilidan/voicelog/pkg/json"
	"github.com/xilidan/voicelog/pkg/logger"
	"github.com/xilidan/voicelog/services/voicelog/entity"
)

// HandleAudio runs one voice message through fetch, transcription and
// generation, stores the result and replies to the sender. The sender is
// upserted first, so a redelivered message still refreshes the display name
// before it is skipped. No recording is stored unless every step succeeds.
func (u *usecase) HandleAudio(ctx context.Context, event *entity.AudioEvent) (*entity.AudioEventResult, error) {
	if event.MessageID == "" || event.LineUserID == "" {
		return nil, fmt.Errorf("%w: message id and user id are required", entity.ErrInvalidInput)
	}

	log := logger.FromContext(ctx).With(
		"message_id", event.MessageID,
		"line_user_id", event.LineUserID,
	)
	ctx = logger.WithContext(ctx, log)

	filename := event.MessageID + audioExt

	displayName, err := u.messenger.Profile(ctx, event.LineUserID)
	if err != nil {
		log.Warn("failed to fetch sender profile", "error", err)
		displayName = ""
	}

	user, err := u.storage.UpsertUser(ctx, event.LineUserID, displayName)
	if err != nil {
		return nil, err
	}

	exists, err := u.storage.RecordingExists(ctx, filename)
	if err != nil {
		return nil, err
	}
	if exists {
		log.Info("recording already stored, skipping redelivered event")
		return &entity.AudioEventResult{Skipped: true}, nil
	}

	path, err := u.fetchAudio(ctx, event.MessageID, filename)
	if err != nil {
		log.Error("failed to fetch audio", "error", err)
		u.reply(ctx, event.ReplyToken, entity.MessageAudioFetchFailed)
		return nil, fmt.Errorf("%w: %w", entity.ErrAudioFetchFailed, err)
	}
	u.archive(ctx, filename, path)

	transcript, err := u.transcribe(ctx, filename, path)
	if err != nil {
		log.Error("failed to transcribe audio", "error", err)
		u.reply(ctx, event.ReplyToken, entity.MessageTranscriptionFailed)
		return nil, err
	}

	userText, replyText, err := u.generate(ctx, transcript, u.mode)
	if err != nil {
		log.Error("failed to generate text", "error", err)
		u.reply(ctx, event.ReplyToken, entity.MessageGenerationFailed)
		return nil, err
	}

	rec, err := u.storage.CreateRecording(ctx, &entity.Recording{
		UserID:        user.ID,
		Filename:      filename,
		Transcription: userText,
		RecordedAt:    event.Timestamp,
	})
	if err != nil {
		if errors.Is(err, entity.ErrDuplicateRecording) {
			log.Info("recording stored by a concurrent delivery, skipping")
			return &entity.AudioEventResult{Skipped: true}, nil
		}
		return nil, err
	}
	log.Info("recording stored", "recording_id", rec.ID, "user_id", user.ID)

	result := &entity.AudioEventResult{Recording: rec, ReplyText: replyText}
	if err := u.messenger.Reply(ctx, event.ReplyToken, replyText); err != nil {
		return result, fmt.Errorf("failed to reply: %w", err)
	}

	return result, nil
}

// Upload runs an uploaded audio file through transcription and the combined
// correction-and-reply prompt and stores it for the given sender.
func (u *usecase) Upload(ctx context.Context, req *entity.UploadRequest, audio io.Reader) (*entity.Reply, error) {
	log := logger.FromContext(ctx)

	lineUserID := strings.TrimSpace(req.LineUserID)
	if lineUserID == "" {
		lineUserID = defaultUploadUserID
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = defaultUploadDisplayName
	}

	user, err := u.storage.UpsertUser(ctx, lineUserID, displayName)
	if err != nil {
		return nil, err
	}

	filename := u.ids.FileName(u.now(), req.Filename)
	path, err := u.saveAudio(filename, audio)
	if err != nil {
		return nil, err
	}
	u.archive(ctx, filename, path)

	transcript, err := u.transcribe(ctx, filename, path)
	if err != nil {
		log.Error("failed to transcribe upload", "filename", filename, "error", err)
		return nil, err
	}

	userText, replyText, err := u.generate(ctx, transcript, ModeReply)
	if err != nil {
		log.Error("failed to generate reply for upload", "filename", filename, "error", err)
		return nil, err
	}

	rec, err := u.storage.CreateRecording(ctx, &entity.Recording{
		UserID:        user.ID,
		Filename:      filename,
		Transcription: userText,
		RecordedAt:    u.now(),
	})
	if err != nil {
		return nil, err
	}
	log.Info("upload stored", "recording_id", rec.ID, "user_id", user.ID)

	return &entity.Reply{UserText: userText, Reply: replyText}, nil
}

func (u *usecase) fetchAudio(ctx context.Context, messageID, filename string) (string, error) {
	body, err := u.messenger.Content(ctx, messageID)
	if err != nil {
		return "", err
	}
	defer body.Close()

	return u.saveAudio(filename, body)
}

func (u *usecase) transcribe(ctx context.Context, filename, path string) (string, error) {
	text, err := u.transcribeFile(ctx, filename, path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", entity.ErrTranscriptionFailed, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty transcript", entity.ErrTranscriptionFailed)
	}

	return text, nil
}

// generate returns the text to store and the text to send back. In reply
// mode output that is not the expected JSON object is used as the reply
// as-is and the transcript is stored.
func (u *usecase) generate(ctx context.Context, transcript string, mode Mode) (string, string, error) {
	if mode == ModeReply {
		out, err := u.generator.Generate(ctx, replyPrompt(transcript))
		if err != nil {
			return "", "", fmt.Errorf("%w: %w", entity.ErrGenerationFailed, err)
		}

		var r entity.Reply
		if err := json.DecodeLoose(out, &r); err != nil || strings.TrimSpace(r.Reply) == "" {
			logger.FromContext(ctx).Warn("generation output is not a reply object, using it verbatim")
			return transcript, orDefault(out, transcript), nil
		}

		return orDefault(r.UserText, transcript), strings.TrimSpace(r.Reply), nil
	}

	out, err := u.generator.Generate(ctx, correctionPrompt(transcript))
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", entity.ErrGenerationFailed, err)
	}

	corrected := orDefault(out, transcript)
	return corrected, corrected, nil
}

func (u *usecase) reply(ctx context.Context, replyToken, text string) {
	if replyToken == "" {
		return
	}
	if err := u.messenger.Reply(ctx, replyToken, text); err != nil {
		logger.FromContext(ctx).Error("failed to send failure reply", "error", err)
	}
}

func orDefault(s, fallback string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return fallback
}
