package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/playlistbot/internal/models"
	"github.com/desertthunder/playlistbot/internal/shared"
)

// ShareRepository persists [models.ShareRecord] audit entries.
type ShareRepository struct {
	db *sql.DB
}

// NewShareRepository creates a new [ShareRepository] with the given database connection
func NewShareRepository(db *sql.DB) *ShareRepository {
	return &ShareRepository{db: db}
}

const shareColumns = `id, sequence, request_id, channel, author, kind, asset_id, display_name,
	playlist_id, candidates, added, outcome, error, created_at`

// Create inserts a record, filling in ID, Sequence and CreatedAt when unset.
//
// The sequence is taken in the same transaction as the insert, so a failed insert leaves no gap.
func (r *ShareRepository) Create(ctx context.Context, record *models.ShareRecord) error {
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := NextSequence(ctx, tx, "shares")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := record.ID
	if id == "" {
		id = shared.GenerateID()
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `INSERT INTO shares (` + shareColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		id, sequence, record.RequestID, record.Channel, record.Author,
		string(record.Kind), record.AssetID, record.DisplayName, record.PlaylistID,
		record.Candidates, record.Added, string(record.Outcome), record.Error, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert share: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit share: %w", err)
	}

	record.ID = id
	record.Sequence = sequence
	record.CreatedAt = createdAt
	return nil
}

// Get retrieves a record by ID.
func (r *ShareRepository) Get(ctx context.Context, id string) (*models.ShareRecord, error) {
	query := `SELECT ` + shareColumns + ` FROM shares WHERE id = ?`
	record, err := scanShare(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: share %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query share: %w", err)
	}
	return record, nil
}

// Recent returns up to limit records, newest first.
func (r *ShareRepository) Recent(ctx context.Context, limit int) ([]*models.ShareRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + shareColumns + ` FROM shares ORDER BY sequence DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query shares: %w", err)
	}
	defer rows.Close()

	var records []*models.ShareRecord
	for rows.Next() {
		record, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CountByOutcome returns how many records exist per outcome.
func (r *ShareRepository) CountByOutcome(ctx context.Context) (map[models.Outcome]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM shares GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count shares: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Outcome]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[models.Outcome(outcome)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShare(row rowScanner) (*models.ShareRecord, error) {
	var (
		record  models.ShareRecord
		kind    string
		outcome string
	)
	err := row.Scan(
		&record.ID, &record.Sequence, &record.RequestID, &record.Channel, &record.Author,
		&kind, &record.AssetID, &record.DisplayName, &record.PlaylistID,
		&record.Candidates, &record.Added, &outcome, &record.Error, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Kind = models.ShareKind(kind)
	record.Outcome = models.Outcome(outcome)
	return &record, nil
}
