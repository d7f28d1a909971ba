package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"aquakeep/internal/event"
	logx "aquakeep/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// sqliteStore keeps one row per event: the full entity as a JSON doc column
// plus denormalized columns for everything the queries filter or sort on.
// unsent and next_due_at are derived from the reminders on every write so
// the due-reminder sweep is a pure index scan.
type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (event.Repository, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const eventColumns = `id, user_id, aquarium_id, type, status, title, scheduled_at, recurring, created_at, unsent, next_due_at, doc`

func (s *sqliteStore) Create(ctx context.Context, e *event.Event) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	args, err := rowArgs(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events(`+eventColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		args...,
	)
	return err
}

func (s *sqliteStore) Update(ctx context.Context, e *event.Event) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	args, err := rowArgs(e)
	if err != nil {
		return err
	}
	// id first in the column list, move it to the WHERE clause.
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET user_id=?, aquarium_id=?, type=?, status=?, title=?,
		 scheduled_at=?, recurring=?, created_at=?, unsent=?, next_due_at=?, doc=?
		 WHERE id=?`,
		append(args[1:], args[0])...,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return event.ErrNotFound
	}
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return event.ErrNotFound
	}
	return nil
}

func (s *sqliteStore) FindByID(ctx context.Context, id string) (*event.Event, error) {
	return s.queryOne(ctx, `SELECT doc FROM events WHERE id=?`, id)
}

func (s *sqliteStore) FindByIDAndUser(ctx context.Context, id, userID string) (*event.Event, error) {
	return s.queryOne(ctx, `SELECT doc FROM events WHERE id=? AND user_id=?`, id, userID)
}

func (s *sqliteStore) FindByAquarium(ctx context.Context, aquariumID string, opts event.FindOptions) ([]*event.Event, error) {
	return s.queryList(ctx, "aquarium_id=?", []any{aquariumID}, opts)
}

func (s *sqliteStore) FindByUser(ctx context.Context, userID string, opts event.FindOptions) ([]*event.Event, error) {
	return s.queryList(ctx, "user_id=?", []any{userID}, opts)
}

func (s *sqliteStore) FindUpcoming(ctx context.Context, userID string, days int) ([]*event.Event, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	if days <= 0 {
		days = 7
	}
	now := time.Now()
	return s.queryMany(ctx,
		`SELECT doc FROM events
		 WHERE user_id=? AND status=? AND scheduled_at >= ? AND scheduled_at <= ?
		 ORDER BY scheduled_at ASC`,
		userID, string(event.StatusScheduled), now.UnixMilli(), now.AddDate(0, 0, days).UnixMilli(),
	)
}

func (s *sqliteStore) FindOverdue(ctx context.Context, userID string) ([]*event.Event, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	return s.queryMany(ctx,
		`SELECT doc FROM events
		 WHERE user_id=? AND status=? AND scheduled_at < ?
		 ORDER BY scheduled_at ASC`,
		userID, string(event.StatusScheduled), time.Now().UnixMilli(),
	)
}

func (s *sqliteStore) FindAllOverdue(ctx context.Context) ([]*event.Event, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	return s.queryMany(ctx,
		`SELECT doc FROM events
		 WHERE status=? AND scheduled_at < ?
		 ORDER BY scheduled_at ASC`,
		string(event.StatusScheduled), time.Now().UnixMilli(),
	)
}

func (s *sqliteStore) FindDueReminders(ctx context.Context, window time.Duration) ([]*event.Event, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	now := time.Now()
	return s.queryMany(ctx,
		`SELECT doc FROM events
		 WHERE status=? AND scheduled_at >= ? AND unsent > 0 AND next_due_at <= ?
		 ORDER BY next_due_at ASC`,
		string(event.StatusScheduled), now.UnixMilli(), now.Add(window).UnixMilli(),
	)
}

func (s *sqliteStore) CountByUser(ctx context.Context, userID string, status event.Status) (int, error) {
	return s.count(ctx, "user_id", userID, status)
}

func (s *sqliteStore) CountByAquarium(ctx context.Context, aquariumID string, status event.Status) (int, error) {
	return s.count(ctx, "aquarium_id", aquariumID, status)
}

func (s *sqliteStore) count(ctx context.Context, col, val string, status event.Status) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	q := `SELECT COUNT(*) FROM events WHERE ` + col + `=?`
	args := []any{val}
	if status != "" {
		q += ` AND status=?`
		args = append(args, string(status))
	}
	var n int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *sqliteStore) queryList(ctx context.Context, where string, args []any, opts event.FindOptions) ([]*event.Event, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	conds := []string{where}
	if opts.Type != "" {
		conds = append(conds, "type=?")
		args = append(args, string(opts.Type))
	}
	if opts.Status != "" {
		conds = append(conds, "status=?")
		args = append(args, string(opts.Status))
	}
	if opts.Recurring != nil {
		conds = append(conds, "recurring=?")
		args = append(args, boolInt(*opts.Recurring))
	}
	if !opts.From.IsZero() {
		conds = append(conds, "scheduled_at >= ?")
		args = append(args, opts.From.UnixMilli())
	}
	if !opts.To.IsZero() {
		conds = append(conds, "scheduled_at <= ?")
		args = append(args, opts.To.UnixMilli())
	}

	order := "scheduled_at"
	switch opts.SortBy {
	case "createdAt":
		order = "created_at"
	case "title":
		order = "title"
	}
	dir := "ASC"
	if opts.SortDesc {
		dir = "DESC"
	}

	q := `SELECT doc FROM events WHERE ` + strings.Join(conds, " AND ") +
		` ORDER BY ` + order + ` ` + dir

	if opts.Limit >= 0 {
		limit := opts.Limit
		if limit == 0 {
			limit = defaultPageLimit
		}
		page := opts.Page
		if page < 1 {
			page = 1
		}
		q += ` LIMIT ? OFFSET ?`
		args = append(args, limit, (page-1)*limit)
	}

	return s.queryMany(ctx, q, args...)
}

func (s *sqliteStore) queryOne(ctx context.Context, q string, args ...any) (*event.Event, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	var doc string
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeEvent(doc)
}

func (s *sqliteStore) queryMany(ctx context.Context, q string, args ...any) ([]*event.Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*event.Event, 0, 16)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		e, err := decodeEvent(doc)
		if err != nil {
			s.log.Warn("skipping undecodable event row", logx.Err(err))
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func rowArgs(e *event.Event) ([]any, error) {
	doc, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	unsent := 0
	var nextDue any
	for _, r := range e.Reminders {
		if r.Sent {
			continue
		}
		unsent++
		at := r.ReminderTime(e.ScheduledDate).UnixMilli()
		if nextDue == nil || at < nextDue.(int64) {
			nextDue = at
		}
	}
	return []any{
		e.ID, e.UserID, e.AquariumID, string(e.Type), string(e.Status), e.Title,
		e.ScheduledDate.UnixMilli(), boolInt(e.Recurring), e.CreatedAt.UnixMilli(),
		unsent, nextDue, string(doc),
	}, nil
}

func decodeEvent(doc string) (*event.Event, error) {
	var e event.Event
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
