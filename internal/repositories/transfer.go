// package repositories provides the persistence layer for transfer history.
//
// Recording is best-effort: a failed write is logged by the caller and never
// fails the transfer that produced it.
package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"spottransfer/internal/shared"
	"spottransfer/internal/tasks"
)

// TransferRecord is one completed (or quota-aborted) playlist transfer.
type TransferRecord struct {
	ID             string    `json:"id"`
	SourceID       string    `json:"source_id"`
	SourceName     string    `json:"source_name"`
	DestinationID  string    `json:"destination_id"`
	TotalTracks    int       `json:"total_tracks"`
	AddedTracks    int       `json:"added_tracks"`
	NotFoundTracks int       `json:"not_found_tracks"`
	FailedTracks   int       `json:"failed_tracks"`
	QuotaExceeded  bool      `json:"quota_exceeded"`
	CreatedAt      time.Time `json:"created_at"`
}

const transferSchema = `
CREATE TABLE IF NOT EXISTS transfers (
	id TEXT PRIMARY KEY,
	source_id TEXT NOT NULL,
	source_name TEXT NOT NULL,
	destination_id TEXT NOT NULL,
	total_tracks INTEGER NOT NULL,
	added_tracks INTEGER NOT NULL,
	not_found_tracks INTEGER NOT NULL,
	failed_tracks INTEGER NOT NULL,
	quota_exceeded INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transfers_created_at ON transfers(created_at);
`

// TransferRepository persists transfer history rows.
type TransferRepository struct {
	db *sql.DB
}

// NewTransferRepository creates a repository over an open database handle.
func NewTransferRepository(db *sql.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

// Migrate creates the transfers table. Idempotent.
func (r *TransferRepository) Migrate() error {
	if _, err := r.db.Exec(transferSchema); err != nil {
		return fmt.Errorf("failed to migrate transfers table: %w", err)
	}
	return nil
}

// Record builds a TransferRecord from an engine result and inserts it.
func (r *TransferRepository) Record(sourceID string, result *tasks.TransferResult) (*TransferRecord, error) {
	record := &TransferRecord{
		ID:             shared.GenerateID(),
		SourceID:       sourceID,
		SourceName:     result.PlaylistName,
		DestinationID:  result.PlaylistID,
		TotalTracks:    result.TotalTracks,
		AddedTracks:    result.Count(tasks.StatusAdded) + result.Count(tasks.StatusDuplicate),
		NotFoundTracks: result.Count(tasks.StatusNotFound),
		FailedTracks:   result.Count(tasks.StatusFailed) + result.Count(tasks.StatusQuotaExceeded),
		QuotaExceeded:  result.QuotaExceeded,
		CreatedAt:      time.Now().UTC(),
	}

	if err := r.Create(record); err != nil {
		return nil, err
	}
	return record, nil
}

// Create inserts a transfer record.
func (r *TransferRepository) Create(record *TransferRecord) error {
	_, err := r.db.Exec(
		`INSERT INTO transfers (id, source_id, source_name, destination_id, total_tracks,
			added_tracks, not_found_tracks, failed_tracks, quota_exceeded, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.SourceID, record.SourceName, record.DestinationID, record.TotalTracks,
		record.AddedTracks, record.NotFoundTracks, record.FailedTracks, record.QuotaExceeded, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer record: %w", err)
	}
	return nil
}

// Get retrieves a transfer record by id.
func (r *TransferRepository) Get(id string) (*TransferRecord, error) {
	row := r.db.QueryRow(
		`SELECT id, source_id, source_name, destination_id, total_tracks,
			added_tracks, not_found_tracks, failed_tracks, quota_exceeded, created_at
		 FROM transfers WHERE id = ?`, id)

	record, err := scanTransfer(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transfer %s: %w", id, shared.ErrPlaylistNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer record: %w", err)
	}
	return record, nil
}

// List returns the most recent transfer records, newest first.
func (r *TransferRepository) List(limit int) ([]TransferRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		`SELECT id, source_id, source_name, destination_id, total_tracks,
			added_tracks, not_found_tracks, failed_tracks, quota_exceeded, created_at
		 FROM transfers ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfer records: %w", err)
	}
	defer rows.Close()

	var records []TransferRecord
	for rows.Next() {
		record, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer record: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransfer(s scanner) (*TransferRecord, error) {
	var record TransferRecord
	err := s.Scan(
		&record.ID, &record.SourceID, &record.SourceName, &record.DestinationID, &record.TotalTracks,
		&record.AddedTracks, &record.NotFoundTracks, &record.FailedTracks, &record.QuotaExceeded, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
