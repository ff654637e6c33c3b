package binding

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Binding associates a user with an edge device.
type Binding struct {
	ID      int64
	UserID  string
	EdgeID  string
	BoundAt time.Time
}

// Repository defines the interface for binding persistence operations.
type Repository interface {
	Bind(ctx context.Context, userID, edgeID string) error
	Unbind(ctx context.Context, userID, edgeID string) error
	Exists(ctx context.Context, userID, edgeID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]Binding, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed binding repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Bind creates a binding between a user and an edge device.
// Returns ErrAlreadyBound if the binding exists.
func (r *SQLiteRepository) Bind(ctx context.Context, userID, edgeID string) error {
	const query = `INSERT INTO user_edge_bindings (user_id, edge_id, bound_at)
		VALUES (?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		userID, edgeID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAlreadyBound
		}
		return fmt.Errorf("inserting binding %s/%s: %w", userID, edgeID, err)
	}
	return nil
}

// Unbind removes a binding. Returns ErrNotBound if none exists.
func (r *SQLiteRepository) Unbind(ctx context.Context, userID, edgeID string) error {
	const query = `DELETE FROM user_edge_bindings WHERE user_id = ? AND edge_id = ?`
	result, err := r.db.ExecContext(ctx, query, userID, edgeID)
	if err != nil {
		return fmt.Errorf("deleting binding %s/%s: %w", userID, edgeID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deleted binding: %w", err)
	}
	if affected == 0 {
		return ErrNotBound
	}
	return nil
}

// Exists reports whether a user is bound to an edge device.
func (r *SQLiteRepository) Exists(ctx context.Context, userID, edgeID string) (bool, error) {
	const query = `SELECT 1 FROM user_edge_bindings WHERE user_id = ? AND edge_id = ?`
	var one int
	err := r.db.QueryRowContext(ctx, query, userID, edgeID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying binding %s/%s: %w", userID, edgeID, err)
	}
	return true, nil
}

// ListByUser returns all bindings for a user, ordered by edge id.
func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string) ([]Binding, error) {
	const query = `SELECT id, user_id, edge_id, bound_at
		FROM user_edge_bindings WHERE user_id = ? ORDER BY edge_id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying bindings for %s: %w", userID, err)
	}
	defer rows.Close()

	var bindings []Binding
	for rows.Next() {
		var b Binding
		var boundAt string
		if err := rows.Scan(&b.ID, &b.UserID, &b.EdgeID, &boundAt); err != nil {
			return nil, fmt.Errorf("scanning binding row: %w", err)
		}
		b.BoundAt, _ = time.Parse(time.RFC3339, boundAt)
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bindings: %w", err)
	}
	return bindings, nil
}
