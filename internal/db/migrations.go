package db

import (
	"database/sql"
	"fmt"
)

// migrations is a list of SQL statements applied in order after schema creation.
// Each migration must be idempotent. Append new migrations at the end.
var migrations = []string{
	// Migration 1: index the lookups the transfer workflow does on every
	// request (pending requests per equipment, grants per user).
	`CREATE INDEX IF NOT EXISTS idx_transfers_equipment_status
	     ON documents(json_extract(data, '$.equipment_id'), json_extract(data, '$.status'))
	     WHERE collection = 'transfer_requests'`,
	`CREATE INDEX IF NOT EXISTS idx_scopes_user
	     ON documents(json_extract(data, '$.user_id'))
	     WHERE collection = 'leader_scopes'`,
	// Migration 2: serial numbers are unique across equipment.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_equipment_serial
	     ON documents(json_extract(data, '$.serial_number'))
	     WHERE collection = 'equipment' AND json_extract(data, '$.serial_number') IS NOT NULL`,
}

// Migrate ensures the schema and runs the migrations.
func Migrate(db *sql.DB) error {
	if err := EnsureSchema(db); err != nil {
		return err
	}

	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}

	return nil
}
