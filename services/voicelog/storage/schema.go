package storage

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	usersTableName      = "users"
	recordingsTableName = "recordings"
)

var (
	usersColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "line_user_id", Type: field.TypeString, Unique: true},
		{Name: "display_name", Type: field.TypeString, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	usersTable = &schema.Table{
		Name:       usersTableName,
		Columns:    usersColumns,
		PrimaryKey: []*schema.Column{usersColumns[0]},
	}

	recordingsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "filename", Type: field.TypeString, Unique: true},
		{Name: "transcription", Type: field.TypeString, Size: 2147483647},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "recorded_at", Type: field.TypeTime},
		{Name: "user_id", Type: field.TypeInt},
	}
	recordingsTable = &schema.Table{
		Name:       recordingsTableName,
		Columns:    recordingsColumns,
		PrimaryKey: []*schema.Column{recordingsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "recordings_users_recordings",
				Columns:    []*schema.Column{recordingsColumns[5]},
				RefColumns: []*schema.Column{usersColumns[0]},
				OnDelete:   schema.NoAction,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "recording_user_id",
				Unique:  false,
				Columns: []*schema.Column{recordingsColumns[5]},
			},
			{
				Name:    "recording_recorded_at",
				Unique:  false,
				Columns: []*schema.Column{recordingsColumns[4]},
			},
		},
	}

	tables = []*schema.Table{
		usersTable,
		recordingsTable,
	}
)

func init() {
	recordingsTable.ForeignKeys[0].RefTable = usersTable
}

// Migrate creates the users and recordings tables if they are missing. It is
// safe to run on every start.
func Migrate(ctx context.Context, drv dialect.Driver) error {
	m, err := schema.NewMigrate(drv)
	if err != nil {
		return fmt.Errorf("failed to create migration: %w", err)
	}
	if err := m.Create(ctx, tables...); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
