package storage

import (
	"context"
	"errors"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"
	"github.com/xilidan/voicelog/pkg/logger"
	"github.com/xilidan/voicelog/services/voicelog/entity"
)

var userColumns = []string{"id", "line_user_id", "display_name", "created_at", "updated_at"}

func (s *storage) GetUserByLineID(ctx context.Context, lineUserID string) (*entity.User, error) {
	return s.getUserByLineID(ctx, s.drv, lineUserID)
}

func (s *storage) CreateUser(ctx context.Context, lineUserID, displayName string) (*entity.User, error) {
	log := logger.FromContext(ctx)

	user, err := s.createUser(ctx, s.drv, lineUserID, displayName)
	if err != nil {
		log.Error("failed to create user", "error", err)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	log.Debug("created user", "user_id", user.ID)

	return user, nil
}

func (s *storage) UpdateDisplayName(ctx context.Context, id int, displayName string) (*entity.User, error) {
	var user *entity.User
	err := s.withTx(ctx, func(tx dialect.Tx) error {
		u, err := s.getUserByID(ctx, tx, id)
		if err != nil {
			return err
		}
		user, err = s.updateDisplayName(ctx, tx, u, displayName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update display name: %w", err)
	}
	return user, nil
}

// UpsertUser finds the user by its LINE id, creating it when absent and
// refreshing the display name when present. The change is committed before
// it returns. An empty displayName never overwrites a stored one.
func (s *storage) UpsertUser(ctx context.Context, lineUserID, displayName string) (*entity.User, error) {
	log := logger.FromContext(ctx)

	user, err := s.upsertUser(ctx, lineUserID, displayName)
	if err != nil && sqlgraph.IsUniqueConstraintError(err) {
		// A concurrent event created the same user first.
		log.Debug("user created concurrently, retrying upsert", "line_user_id", lineUserID)
		user, err = s.upsertUser(ctx, lineUserID, displayName)
	}
	if err != nil {
		log.Error("failed to upsert user", "error", err)
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	return user, nil
}

func (s *storage) upsertUser(ctx context.Context, lineUserID, displayName string) (*entity.User, error) {
	var user *entity.User
	err := s.withTx(ctx, func(tx dialect.Tx) error {
		u, err := s.getUserByLineID(ctx, tx, lineUserID)
		switch {
		case errors.Is(err, entity.ErrNotFound):
			u, err = s.createUser(ctx, tx, lineUserID, displayName)
		case err != nil:
		case displayName != "" && u.DisplayName != displayName:
			u, err = s.updateDisplayName(ctx, tx, u, displayName)
		}
		user = u
		return err
	})
	return user, err
}

func (s *storage) ListUsers(ctx context.Context) ([]*entity.User, error) {
	query, args := s.builder().
		Select(userColumns...).
		From(s.builder().Table(usersTableName)).
		OrderBy("display_name", "id").
		Query()

	var rows entsql.Rows
	if err := s.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*entity.User
	for rows.Next() {
		u, err := scanUser(&rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

func (s *storage) getUserByLineID(ctx context.Context, q dialect.ExecQuerier, lineUserID string) (*entity.User, error) {
	return s.getUser(ctx, q, entsql.EQ("line_user_id", lineUserID))
}

func (s *storage) getUserByID(ctx context.Context, q dialect.ExecQuerier, id int) (*entity.User, error) {
	return s.getUser(ctx, q, entsql.EQ("id", id))
}

func (s *storage) getUser(ctx context.Context, q dialect.ExecQuerier, where *entsql.Predicate) (*entity.User, error) {
	query, args := s.builder().
		Select(userColumns...).
		From(s.builder().Table(usersTableName)).
		Where(where).
		Limit(1).
		Query()

	var rows entsql.Rows
	if err := q.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query user: %w", err)
		}
		return nil, entity.ErrNotFound
	}

	return scanUser(&rows)
}

func (s *storage) createUser(ctx context.Context, q dialect.ExecQuerier, lineUserID, displayName string) (*entity.User, error) {
	now := s.now()
	ib := s.builder().
		Insert(usersTableName).
		Columns("line_user_id", "display_name", "created_at", "updated_at").
		Values(lineUserID, displayName, now, now)

	id, err := s.insert(ctx, q, ib)
	if err != nil {
		return nil, err
	}

	return &entity.User{
		ID:          id,
		LineUserID:  lineUserID,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *storage) updateDisplayName(ctx context.Context, q dialect.ExecQuerier, u *entity.User, displayName string) (*entity.User, error) {
	now := s.now()
	query, args := s.builder().
		Update(usersTableName).
		Set("display_name", displayName).
		Set("updated_at", now).
		Where(entsql.EQ("id", u.ID)).
		Query()

	if err := q.Exec(ctx, query, args, nil); err != nil {
		return nil, err
	}

	updated := *u
	updated.DisplayName = displayName
	updated.UpdatedAt = now
	return &updated, nil
}

func scanUser(rows *entsql.Rows) (*entity.User, error) {
	var u entity.User
	if err := rows.Scan(&u.ID, &u.LineUserID, &u.DisplayName, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
