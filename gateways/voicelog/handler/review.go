package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/xilidan/voicelog/pkg/logger"
	"github.com/xilidan/voicelog/services/voicelog/entity"
)

type (
	listPage struct {
		Recordings []*entity.RecordingView
		Users      []*entity.User
		Selected   string
	}

	facingSheetErrorPage struct {
		Recording entity.RecordingView
		Raw       string
		Error     string
	}

	supportLogPage struct {
		Log         *entity.SupportLog
		RecordingID int
		Batch       bool
	}
)

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := entity.ListFilter{LineUserID: strings.TrimSpace(r.URL.Query().Get("user_id"))}

	recs, err := h.uc.ListRecordings(ctx, filter)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	users, err := h.uc.ListUsers(ctx)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "list.html", listPage{
		Recordings: recs,
		Users:      users,
		Selected:   filter.LineUserID,
	})
}

func (h *Handler) FacingSheet(w http.ResponseWriter, r *http.Request) {
	id, err := recordingID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	sheet, err := h.uc.FacingSheet(r.Context(), id)
	if err != nil {
		var sheetErr *entity.FacingSheetError
		if errors.As(err, &sheetErr) {
			h.render(w, r, http.StatusInternalServerError, "facing_sheet_error.html", facingSheetErrorPage{
				Recording: sheetErr.Recording,
				Raw:       sheetErr.Raw,
				Error:     sheetErr.Err.Error(),
			})
			return
		}
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "facing_sheet.html", sheet)
}

// SupportLogForm shows the name form with a preview built from the query.
func (h *Handler) SupportLogForm(w http.ResponseWriter, r *http.Request) {
	id, err := recordingID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	q := r.URL.Query()
	supportLog, err := h.uc.SupportLog(r.Context(), id, &entity.SupportLogRequest{
		CaseHandler: strings.TrimSpace(q.Get("case_handler")),
		Author:      strings.TrimSpace(q.Get("author")),
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "support_log.html", supportLogPage{Log: supportLog, RecordingID: id})
}

func (h *Handler) SupportLogSubmit(w http.ResponseWriter, r *http.Request) {
	id, err := recordingID(r)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, fmt.Errorf("%w: malformed form", entity.ErrInvalidInput))
		return
	}

	req := &entity.SupportLogRequest{
		CaseHandler: r.PostForm.Get("case_handler"),
		Author:      r.PostForm.Get("author"),
	}
	if err := req.Normalize(); err != nil {
		h.renderError(w, r, err)
		return
	}

	if _, err := h.uc.SupportLog(r.Context(), id, req); err != nil {
		h.renderError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("support log recorded",
		"recording_id", id,
		"case_handler", req.CaseHandler,
		"author", req.Author)

	http.Redirect(w, r, "/list/", http.StatusSeeOther)
}

func (h *Handler) SupportLogBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, fmt.Errorf("%w: malformed form", entity.ErrInvalidInput))
		return
	}

	ids := make([]int, 0, len(r.PostForm["recording_ids"]))
	for _, raw := range r.PostForm["recording_ids"] {
		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			h.renderError(w, r, fmt.Errorf("%w: bad recording id %q", entity.ErrInvalidInput, raw))
			return
		}
		ids = append(ids, id)
	}

	req := &entity.SupportLogRequest{
		CaseHandler: r.PostForm.Get("case_handler"),
		Author:      r.PostForm.Get("author"),
	}
	if err := req.Normalize(); err != nil {
		h.renderError(w, r, err)
		return
	}

	supportLog, err := h.uc.SupportLogBatch(r.Context(), ids, req)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.render(w, r, http.StatusOK, "support_log.html", supportLogPage{Log: supportLog, Batch: true})
}

// recordingID parses {recording_id}. Anything that is not a positive integer
// cannot name a recording.
func recordingID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "recording_id"))
	if err != nil || id <= 0 {
		return 0, entity.ErrNotFound
	}
	return id, nil
}
