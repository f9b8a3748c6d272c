package complaint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a complaint ID does not exist.
var ErrNotFound = errors.New("complaint not found")

// Store persists complaint records in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a complaint store, running migrations on first use.
// The caller owns the *sql.DB (driver choice and connection settings).
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate complaints: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS complaints (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			complaint_text TEXT NOT NULL,
			category       TEXT,
			urgency        TEXT,
			status         TEXT NOT NULL DEFAULT 'Pending',
			assigned_to    TEXT,
			response       TEXT,
			created_at     TIMESTAMP NOT NULL,
			updated_at     TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_complaints_category ON complaints(category);
		CREATE INDEX IF NOT EXISTS idx_complaints_status ON complaints(status);
	`)
	return err
}

// ListFilter narrows List and Count results. Zero values mean "no filter".
type ListFilter struct {
	Category Category
	Urgency  Urgency
	Status   Status
	Search   string // case-insensitive substring match on complaint text
	Limit    int
	Offset   int
}

const complaintColumns = `id, complaint_text,
	COALESCE(category, ''), COALESCE(urgency, ''), status,
	COALESCE(assigned_to, ''), COALESCE(response, ''),
	created_at, updated_at`

func scanComplaint(row interface{ Scan(...any) error }) (*Complaint, error) {
	var c Complaint
	err := row.Scan(&c.ID, &c.Text, &c.Category, &c.Urgency, &c.Status,
		&c.AssignedTo, &c.Response, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create inserts a new complaint with the given classification and a
// Pending status. Returns the stored record including its assigned ID.
func (s *Store) Create(ctx context.Context, text string, category Category, urgency Urgency) (*Complaint, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("complaint text is required")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO complaints (complaint_text, category, urgency, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		text, string(category), string(urgency), string(StatusPending), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert complaint: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert complaint id: %w", err)
	}

	return s.Get(ctx, id)
}

// Get fetches one complaint by ID. Returns [ErrNotFound] for unknown IDs.
func (s *Store) Get(ctx context.Context, id int64) (*Complaint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+complaintColumns+` FROM complaints WHERE id = ?`, id)

	c, err := scanComplaint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query complaint %d: %w", id, err)
	}
	return c, nil
}

// List returns complaints matching the filter, newest first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]*Complaint, error) {
	where, args := f.whereClause()

	q := `SELECT ` + complaintColumns + ` FROM complaints` + where + ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query complaints: %w", err)
	}
	defer rows.Close()

	var out []*Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan complaint: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of complaints matching the filter.
func (s *Store) Count(ctx context.Context, f ListFilter) (int, error) {
	where, args := f.whereClause()

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM complaints`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count complaints: %w", err)
	}
	return n, nil
}

func (f ListFilter) whereClause() (string, []any) {
	var conds []string
	var args []any

	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, string(f.Category))
	}
	if f.Urgency != "" {
		conds = append(conds, "urgency = ?")
		args = append(args, string(f.Urgency))
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Search != "" {
		conds = append(conds, "complaint_text LIKE ? COLLATE NOCASE")
		args = append(args, "%"+f.Search+"%")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListByCategory returns all complaints in a category, newest first.
func (s *Store) ListByCategory(ctx context.Context, category Category) ([]*Complaint, error) {
	return s.List(ctx, ListFilter{Category: category})
}

// All returns every complaint. Used to build the similarity-search index.
func (s *Store) All(ctx context.Context) ([]*Complaint, error) {
	return s.List(ctx, ListFilter{})
}

// UpdateStatus transitions a complaint to newStatus inside a transaction
// and returns the previous status along with the updated record. Any
// status may transition to any other status. Returns [ErrNotFound] for
// unknown IDs. A failure mid-update rolls the transaction back, leaving
// the record untouched.
func (s *Store) UpdateStatus(ctx context.Context, id int64, newStatus Status) (Status, *Complaint, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", nil, fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback()

	var prev Status
	err = tx.QueryRowContext(ctx, `SELECT status FROM complaints WHERE id = ?`, id).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("query status for %d: %w", id, err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE complaints SET status = ?, updated_at = ? WHERE id = ?`,
		string(newStatus), now, id,
	); err != nil {
		return "", nil, fmt.Errorf("update status for %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return "", nil, fmt.Errorf("commit status update: %w", err)
	}

	updated, err := s.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return prev, updated, nil
}

// Update modifies assignee and/or response text. Empty fields are left
// unchanged. Returns the updated record, or [ErrNotFound].
func (s *Store) Update(ctx context.Context, id int64, assignedTo, response string) (*Complaint, error) {
	var sets []string
	var args []any

	if assignedTo != "" {
		sets = append(sets, "assigned_to = ?")
		args = append(args, assignedTo)
	}
	if response != "" {
		sets = append(sets, "response = ?")
		args = append(args, response)
	}
	if len(sets) == 0 {
		return s.Get(ctx, id)
	}

	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE complaints SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update complaint %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes a complaint. Returns [ErrNotFound] for unknown IDs.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM complaints WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete complaint %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
