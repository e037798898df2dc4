package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrRecordNotFound is returned when a history record does not exist
var ErrRecordNotFound = errors.New("layout record not found")

// LayoutRecord is one rendered layout of a goal's task collection
type LayoutRecord struct {
	ID         string          `json:"id"`
	GoalID     string          `json:"goal_id"`
	TaskCount  int             `json:"task_count"`
	LevelCount int             `json:"level_count"`
	RootCount  int             `json:"root_count"`
	LeafCount  int             `json:"leaf_count"`
	HasNoRoots bool            `json:"has_no_roots"`
	HasCycle   bool            `json:"has_cycle"`
	Layout     json.RawMessage `json:"layout,omitempty"`
	RenderedAt time.Time       `json:"rendered_at"`
}

// HistoryFilter narrows List and Count
type HistoryFilter struct {
	GoalID         string
	DegenerateOnly bool
}

// LayoutHistoryStorage defines the interface for layout history storage
type LayoutHistoryStorage interface {
	// Store stores a layout record
	Store(ctx context.Context, record *LayoutRecord) error

	// Get retrieves a layout record by ID
	Get(ctx context.Context, id string) (*LayoutRecord, error)

	// List retrieves layout records, newest first, with pagination and filters
	List(ctx context.Context, filter HistoryFilter, offset, limit int) ([]*LayoutRecord, error)

	// Count returns the total number of records matching the filter
	Count(ctx context.Context, filter HistoryFilter) (int, error)

	// DeleteBefore deletes records rendered before the specified time
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteLayoutHistory implements LayoutHistoryStorage using SQLite
type SQLiteLayoutHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteLayoutHistory opens (or creates) the history database at dbPath
func NewSQLiteLayoutHistory(logger *zap.Logger, dbPath string) (*SQLiteLayoutHistory, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteLayoutHistory{
		logger: logger.Named("layout-history"),
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteLayoutHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS layout_history (
			id TEXT PRIMARY KEY,
			goal_id TEXT NOT NULL,
			task_count INTEGER NOT NULL,
			level_count INTEGER NOT NULL,
			root_count INTEGER NOT NULL,
			leaf_count INTEGER NOT NULL,
			has_no_roots BOOLEAN NOT NULL,
			has_cycle BOOLEAN NOT NULL,
			layout TEXT,
			rendered_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_layout_history_goal_id ON layout_history(goal_id);
		CREATE INDEX IF NOT EXISTS idx_layout_history_rendered_at ON layout_history(rendered_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements LayoutHistoryStorage.Store
func (s *SQLiteLayoutHistory) Store(ctx context.Context, record *LayoutRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO layout_history (
			id, goal_id, task_count, level_count, root_count, leaf_count,
			has_no_roots, has_cycle, layout, rendered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.GoalID,
		record.TaskCount,
		record.LevelCount,
		record.RootCount,
		record.LeafCount,
		record.HasNoRoots,
		record.HasCycle,
		sql.NullString{String: string(record.Layout), Valid: len(record.Layout) > 0},
		record.RenderedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store layout record: %w", err)
	}
	return nil
}

const selectColumns = `id, goal_id, task_count, level_count, root_count, leaf_count,
	has_no_roots, has_cycle, layout, rendered_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*LayoutRecord, error) {
	record := &LayoutRecord{}
	var layout sql.NullString
	err := row.Scan(
		&record.ID,
		&record.GoalID,
		&record.TaskCount,
		&record.LevelCount,
		&record.RootCount,
		&record.LeafCount,
		&record.HasNoRoots,
		&record.HasCycle,
		&layout,
		&record.RenderedAt,
	)
	if err != nil {
		return nil, err
	}
	if layout.Valid && layout.String != "" {
		record.Layout = json.RawMessage(layout.String)
	}
	return record, nil
}

// Get implements LayoutHistoryStorage.Get
func (s *SQLiteLayoutHistory) Get(ctx context.Context, id string) (*LayoutRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM layout_history WHERE id = ?", id)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return nil, fmt.Errorf("failed to scan layout record: %w", err)
	}
	return record, nil
}

func whereClause(filter HistoryFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if filter.GoalID != "" {
		conds = append(conds, "goal_id = ?")
		args = append(args, filter.GoalID)
	}
	if filter.DegenerateOnly {
		conds = append(conds, "(has_no_roots OR has_cycle)")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List implements LayoutHistoryStorage.List
func (s *SQLiteLayoutHistory) List(ctx context.Context, filter HistoryFilter, offset, limit int) ([]*LayoutRecord, error) {
	where, args := whereClause(filter)
	query := "SELECT " + selectColumns + " FROM layout_history" + where +
		" ORDER BY rendered_at DESC, id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list layout history: %w", err)
	}
	defer rows.Close()

	var records []*LayoutRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan layout record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// Count implements LayoutHistoryStorage.Count
func (s *SQLiteLayoutHistory) Count(ctx context.Context, filter HistoryFilter) (int, error) {
	where, args := whereClause(filter)

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM layout_history"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count layout history: %w", err)
	}
	return count, nil
}

// DeleteBefore implements LayoutHistoryStorage.DeleteBefore
func (s *SQLiteLayoutHistory) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM layout_history WHERE rendered_at < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete layout history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old layout history records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return affected, nil
}

// Close closes the database connection
func (s *SQLiteLayoutHistory) Close() error {
	return s.db.Close()
}
