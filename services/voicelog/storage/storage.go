package storage

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/xilidan/voicelog/services/voicelog/entity"
)

type Storage interface {
	GetUserByLineID(ctx context.Context, lineUserID string) (*entity.User, error)
	CreateUser(ctx context.Context, lineUserID, displayName string) (*entity.User, error)
	UpdateDisplayName(ctx context.Context, id int, displayName string) (*entity.User, error)
	UpsertUser(ctx context.Context, lineUserID, displayName string) (*entity.User, error)
	ListUsers(ctx context.Context) ([]*entity.User, error)

	CreateRecording(ctx context.Context, rec *entity.Recording) (*entity.Recording, error)
	RecordingExists(ctx context.Context, filename string) (bool, error)
	GetRecording(ctx context.Context, id int) (*entity.RecordingView, error)
	GetRecordings(ctx context.Context, ids []int) ([]*entity.RecordingView, error)
	ListRecordings(ctx context.Context, filter entity.ListFilter) ([]*entity.RecordingView, error)

	Close() error
}

type storage struct {
	drv *entsql.Driver
	now func() time.Time
}

func New(drv *entsql.Driver) Storage {
	return &storage{
		drv: drv,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Open connects to the database, creates the schema if needed and returns the
// storage. driverName is "sqlite3" or "postgres".
func Open(ctx context.Context, driverName, dsn string) (Storage, error) {
	drv, err := entsql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driverName, err)
	}

	if err := drv.DB().PingContext(ctx); err != nil {
		drv.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", driverName, err)
	}

	if err := Migrate(ctx, drv); err != nil {
		drv.Close()
		return nil, err
	}

	return New(drv), nil
}

func (s *storage) Close() error {
	return s.drv.Close()
}

func (s *storage) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.drv.Dialect())
}

// withTx runs fn inside a transaction and commits it before returning.
func (s *storage) withTx(ctx context.Context, fn func(tx dialect.Tx) error) error {
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			tx.Rollback()
			panic(v)
		}
	}()

	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: rolling back transaction: %v", err, rerr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// insert executes ib and returns the generated id. Postgres has no
// LastInsertId, so it goes through RETURNING instead.
func (s *storage) insert(ctx context.Context, q dialect.ExecQuerier, ib *entsql.InsertBuilder) (int, error) {
	if s.drv.Dialect() == dialect.Postgres {
		query, args := ib.Returning("id").Query()

		var rows entsql.Rows
		if err := q.Query(ctx, query, args, &rows); err != nil {
			return 0, err
		}
		defer rows.Close()

		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return 0, err
			}
			return 0, errors.New("insert returned no id")
		}
		var id int
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		return id, rows.Err()
	}

	query, args := ib.Query()
	var res stdsql.Result
	if err := q.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return int(id), nil
}
