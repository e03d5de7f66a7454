package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/xilidan/voicelog/pkg/json"
	"github.com/xilidan/voicelog/pkg/logger"
	"github.com/xilidan/voicelog/services/voicelog/entity"
)

const maxWebhookBody = 1 << 20

// Callback receives the messaging platform webhook. Audio events run through
// the intake pipeline one after another, detached from the request so a
// dropped connection does not abort them. A failed event is logged and does
// not fail the delivery.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Warn("webhook body too large", "limit", tooLarge.Limit)
			json.WriteError(w, http.StatusRequestEntityTooLarge, errors.New("payload too large"))
			return
		}
		log.Error("failed to read webhook body", "error", err)
		json.WriteError(w, http.StatusBadRequest, errors.New("failed to read body"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	events, err := h.webhook.ParseWebhook(r)
	if err != nil {
		if errors.Is(err, entity.ErrInvalidSignature) {
			log.Warn("rejected webhook", "error", err)
			json.WriteError(w, http.StatusBadRequest, errors.New("invalid signature"))
			return
		}
		log.Warn("malformed webhook payload", "error", err)
		json.WriteError(w, http.StatusBadRequest, errors.New("malformed payload"))
		return
	}

	for _, event := range events {
		h.handleEvent(ctx, event)
	}

	json.WriteJSON(w, http.StatusOK, map[string]string{"message": "OK"})
}

func (h *Handler) handleEvent(ctx context.Context, event *entity.AudioEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.opts.PipelineTimeout)
	defer cancel()

	log := logger.FromContext(ctx)

	res, err := h.uc.HandleAudio(ctx, event)
	if err != nil {
		log.Error("failed to handle audio event",
			"message_id", event.MessageID,
			"error", err)
		return
	}
	if res.Skipped {
		return
	}
	log.Info("audio event handled",
		"message_id", event.MessageID,
		"recording_id", res.Recording.ID)
}
