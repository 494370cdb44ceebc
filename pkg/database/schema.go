package database

import (
	"database/sql"
	"fmt"
)

// SchemaValidator checks a database against the session store schema
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	requiredTables := map[string]string{
		"active_session":    "Active session slot",
		"archived_sessions": "Closed session archive",
		"schema_migrations": "Migration tracking",
	}

	for table, description := range requiredTables {
		exists, err := v.exists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s (%s): %w", table, description, err)
		}
		if !exists {
			return fmt.Errorf("required table %s (%s) does not exist", table, description)
		}
	}

	return nil
}

// ValidateTableStructure verifies column names and declared types
func (v *SchemaValidator) ValidateTableStructure() error {
	activeColumns := map[string]string{
		"slot":       "INTEGER",
		"session_id": "TEXT",
		"data":       "TEXT",
		"updated_at": "DATETIME",
	}
	if err := v.validateColumns("active_session", activeColumns); err != nil {
		return fmt.Errorf("active_session table structure invalid: %w", err)
	}

	archiveColumns := map[string]string{
		"id":          "TEXT",
		"sprint_name": "TEXT",
		"created_at":  "TEXT",
		"closed_at":   "TEXT",
		"file":        "TEXT",
		"data":        "TEXT",
		"csv":         "TEXT",
	}
	if err := v.validateColumns("archived_sessions", archiveColumns); err != nil {
		return fmt.Errorf("archived_sessions table structure invalid: %w", err)
	}

	return nil
}

// ValidateIndexes verifies that the archive listing indexes exist
func (v *SchemaValidator) ValidateIndexes() error {
	requiredIndexes := map[string]string{
		"idx_archived_sessions_created_at":  "Archive listing by date",
		"idx_archived_sessions_sprint_name": "Archive lookup by sprint",
	}

	for index, purpose := range requiredIndexes {
		exists, err := v.exists("index", index)
		if err != nil {
			return fmt.Errorf("error checking index %s (%s): %w", index, purpose, err)
		}
		if !exists {
			return fmt.Errorf("required index %s (%s) does not exist", index, purpose)
		}
	}

	return nil
}

// ValidateConstraints verifies the active slot cannot hold a second row
func (v *SchemaValidator) ValidateConstraints() error {
	_, err := v.db.Exec(`INSERT INTO active_session (slot, session_id, data) VALUES (2, 'probe', '{}')`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM active_session WHERE slot = 2")
		return fmt.Errorf("check constraint not enforced: active_session.slot")
	}

	_, err = v.db.Exec(`INSERT INTO archived_sessions (id, sprint_name, created_at, file, data, csv) VALUES ('probe', '', '', '', '{}', '')`)
	if err == nil {
		_, _ = v.db.Exec("DELETE FROM archived_sessions WHERE id = 'probe'")
		return fmt.Errorf("check constraint not enforced: archived_sessions.sprint_name")
	}

	return nil
}

func (v *SchemaValidator) exists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// validateColumns checks that a table has the expected columns with correct types
func (v *SchemaValidator) validateColumns(tableName string, expectedColumns map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	foundColumns := make(map[string]string)
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue interface{}

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return err
		}
		foundColumns[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for expectedCol, expectedType := range expectedColumns {
		foundType, exists := foundColumns[expectedCol]
		if !exists {
			return fmt.Errorf("column %s not found", expectedCol)
		}
		if foundType != expectedType {
			return fmt.Errorf("column %s has type %s, expected %s", expectedCol, foundType, expectedType)
		}
	}

	return nil
}
