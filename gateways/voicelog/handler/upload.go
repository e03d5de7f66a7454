package handler

import (
	"errors"
	"net/http"

	"github.com/xilidan/voicelog/pkg/json"
	"github.com/xilidan/voicelog/pkg/logger"
	"github.com/xilidan/voicelog/services/voicelog/entity"
)

const (
	// MaxAudioSize is the speech-to-text upload limit.
	MaxAudioSize = 25 * 1024 * 1024

	multipartMemory = 8 << 20
)

// Upload runs a multipart audio file through transcription and reply
// generation and answers with {user_text, reply}.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, MaxAudioSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			json.WriteError(w, http.StatusRequestEntityTooLarge, errors.New("file is too large"))
			return
		}
		json.WriteError(w, http.StatusBadRequest, errors.New("multipart form expected"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		json.WriteError(w, http.StatusBadRequest, errors.New("file is required"))
		return
	}
	defer file.Close()

	if header.Size > MaxAudioSize {
		json.WriteError(w, http.StatusRequestEntityTooLarge, errors.New("file is too large"))
		return
	}

	reply, err := h.uc.Upload(ctx, &entity.UploadRequest{
		Filename:    header.Filename,
		LineUserID:  r.FormValue("user_id"),
		DisplayName: r.FormValue("display_name"),
	}, file)
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrTranscriptionFailed):
			json.WriteError(w, http.StatusBadGateway, errors.New(entity.MessageTranscriptionFailed))
		case errors.Is(err, entity.ErrGenerationFailed):
			json.WriteError(w, http.StatusBadGateway, errors.New(entity.MessageGenerationFailed))
		default:
			log.Error("failed to handle upload", "error", err)
			json.WriteError(w, http.StatusInternalServerError, errors.New("internal error"))
		}
		return
	}

	json.WriteJSON(w, http.StatusOK, reply)
}
