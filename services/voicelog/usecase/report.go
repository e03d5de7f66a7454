package usecase

import (
	"context"
	"fmt"

	"github.com/xilidan/voicelog/pkg/json"
	"github.com/xilidan/voicelog/pkg/logger"
	"github.com/xilidan/voicelog/services/voicelog/entity"
)

func (u *usecase) ListRecordings(ctx context.Context, filter entity.ListFilter) ([]*entity.RecordingView, error) {
	return u.storage.ListRecordings(ctx, filter)
}

func (u *usecase) ListUsers(ctx context.Context) ([]*entity.User, error) {
	return u.storage.ListUsers(ctx)
}

// FacingSheet asks the generation service to fill the fixed facing sheet
// fields from a stored transcription. Output without an extractable object
// yields a *entity.FacingSheetError carrying the raw content.
func (u *usecase) FacingSheet(ctx context.Context, recordingID int) (*entity.FacingSheet, error) {
	rec, err := u.storage.GetRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}

	content, err := u.generator.Generate(ctx, facingSheetPrompt(rec.Transcription))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrGenerationFailed, err)
	}

	obj, err := json.ExtractObject(content)
	if err != nil {
		logger.FromContext(ctx).Warn("failed to extract facing sheet",
			"recording_id", recordingID,
			"error", err,
		)
		return nil, &entity.FacingSheetError{Recording: *rec, Raw: content, Err: err}
	}

	items := make([]entity.FacingSheetItem, 0, len(entity.FacingSheetFields))
	for _, f := range entity.FacingSheetFields {
		items = append(items, entity.FacingSheetItem{
			Key:   f.Key,
			Label: f.Label,
			Value: json.Text(obj[f.Key]),
		})
	}

	return &entity.FacingSheet{Recording: *rec, Items: items, Raw: content}, nil
}

func (u *usecase) SupportLog(ctx context.Context, recordingID int, req *entity.SupportLogRequest) (*entity.SupportLog, error) {
	rec, err := u.storage.GetRecording(ctx, recordingID)
	if err != nil {
		return nil, err
	}

	return &entity.SupportLog{
		CaseHandler: req.CaseHandler,
		Author:      req.Author,
		Recordings:  []*entity.RecordingView{rec},
	}, nil
}

func (u *usecase) SupportLogBatch(ctx context.Context, recordingIDs []int, req *entity.SupportLogRequest) (*entity.SupportLog, error) {
	if len(recordingIDs) == 0 {
		return nil, fmt.Errorf("%w: no recordings selected", entity.ErrInvalidInput)
	}

	recs, err := u.storage.GetRecordings(ctx, recordingIDs)
	if err != nil {
		return nil, err
	}

	return &entity.SupportLog{
		CaseHandler: req.CaseHandler,
		Author:      req.Author,
		Recordings:  recs,
	}, nil
}
