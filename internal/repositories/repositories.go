package repositories

import (
	"database/sql"
	"errors"
	"fmt"
)

// NextSequence atomically increments and returns the next sequence number for the given table.
//
// table must be a trusted identifier; it is interpolated into the statement.
func NextSequence(db *sql.DB, table string) (int, error) {
	query := fmt.Sprintf("UPDATE %s_sequence SET value = value + 1 WHERE id = 1 RETURNING value", table)

	var sequence int
	err := db.QueryRow(query).Scan(&sequence)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("sequence for %s is not initialized", table)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}
	return sequence, nil
}
