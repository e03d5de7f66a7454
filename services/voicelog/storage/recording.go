package storage

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
	"github.com/xilidan/voicelog/pkg/logger"
	"github.com/xilidan/voicelog/services/voicelog/entity"
)

func (s *storage) CreateRecording(ctx context.Context, rec *entity.Recording) (*entity.Recording, error) {
	log := logger.FromContext(ctx)

	created := *rec
	if created.CreatedAt.IsZero() {
		created.CreatedAt = s.now()
	}
	if created.RecordedAt.IsZero() {
		created.RecordedAt = created.CreatedAt
	}
	created.CreatedAt = created.CreatedAt.UTC()
	created.RecordedAt = created.RecordedAt.UTC()

	ib := s.builder().
		Insert(recordingsTableName).
		Columns("user_id", "filename", "transcription", "created_at", "recorded_at").
		Values(created.UserID, created.Filename, created.Transcription, created.CreatedAt, created.RecordedAt)

	id, err := s.insert(ctx, s.drv, ib)
	if err != nil {
		if sqlgraph.IsUniqueConstraintError(err) {
			return nil, fmt.Errorf("failed to create recording %s: %w", created.Filename, entity.ErrDuplicateRecording)
		}
		log.Error("failed to create recording", "error", err)
		return nil, fmt.Errorf("failed to create recording: %w", err)
	}
	created.ID = id
	log.Debug("created recording", "recording_id", id, "filename", created.Filename)

	return &created, nil
}

func (s *storage) RecordingExists(ctx context.Context, filename string) (bool, error) {
	query, args := s.builder().
		Select("id").
		From(s.builder().Table(recordingsTableName)).
		Where(entsql.EQ("filename", filename)).
		Limit(1).
		Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return false, fmt.Errorf("failed to check recording: %w", err)
	}
	defer rows.Close()

	exists := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to check recording: %w", err)
	}
	return exists, nil
}

func (s *storage) GetRecording(ctx context.Context, id int) (*entity.RecordingView, error) {
	views, err := s.queryViews(ctx, func(sel *entsql.Selector, r, _ *entsql.SelectTable) {
		sel.Where(entsql.EQ(r.C("id"), id))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get recording: %w", err)
	}
	if len(views) == 0 {
		return nil, entity.ErrNotFound
	}
	return views[0], nil
}

// GetRecordings returns the recordings in the order of ids. It fails with
// ErrNotFound if any id is unknown.
func (s *storage) GetRecordings(ctx context.Context, ids []int) ([]*entity.RecordingView, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	views, err := s.queryViews(ctx, func(sel *entsql.Selector, r, _ *entsql.SelectTable) {
		sel.Where(entsql.In(r.C("id"), args...))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get recordings: %w", err)
	}

	byID := make(map[int]*entity.RecordingView, len(views))
	for _, v := range views {
		byID[v.ID] = v
	}

	ordered := make([]*entity.RecordingView, 0, len(ids))
	for _, id := range ids {
		v, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("recording %d: %w", id, entity.ErrNotFound)
		}
		ordered = append(ordered, v)
	}
	return ordered, nil
}

// ListRecordings returns recordings joined with their users, most recent
// first, optionally restricted to one LINE user.
func (s *storage) ListRecordings(ctx context.Context, filter entity.ListFilter) ([]*entity.RecordingView, error) {
	views, err := s.queryViews(ctx, func(sel *entsql.Selector, r, u *entsql.SelectTable) {
		if filter.LineUserID != "" {
			sel.Where(entsql.EQ(u.C("line_user_id"), filter.LineUserID))
		}
		sel.OrderBy(entsql.Desc(r.C("recorded_at")), entsql.Desc(r.C("id")))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	return views, nil
}

func (s *storage) queryViews(ctx context.Context, modify func(sel *entsql.Selector, r, u *entsql.SelectTable)) ([]*entity.RecordingView, error) {
	b := s.builder()
	r := b.Table(recordingsTableName)
	u := b.Table(usersTableName)

	sel := b.Select(
		r.C("id"),
		r.C("user_id"),
		r.C("filename"),
		r.C("transcription"),
		r.C("created_at"),
		r.C("recorded_at"),
		u.C("line_user_id"),
		u.C("display_name"),
	).
		From(r).
		Join(u).
		On(r.C("user_id"), u.C("id"))
	modify(sel, r, u)

	query, args := sel.Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []*entity.RecordingView
	for rows.Next() {
		var v entity.RecordingView
		if err := rows.Scan(
			&v.ID,
			&v.UserID,
			&v.Filename,
			&v.Transcription,
			&v.CreatedAt,
			&v.RecordedAt,
			&v.LineUserID,
			&v.DisplayName,
		); err != nil {
			return nil, err
		}
		views = append(views, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return views, nil
}
