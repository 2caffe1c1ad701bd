package meetings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"meetbrief/types"
)

// ErrNotFound is returned when no meeting carries the requested id.
var ErrNotFound = errors.New("meeting not found")

// SQLiteRepo persists meetings in SQLite. Sessions are short-lived: every
// method is one read-modify-write against the pool, never held across waits.
type SQLiteRepo struct {
	db *sql.DB
}

func NewSQLiteRepo(db *sql.DB) *SQLiteRepo {
	return &SQLiteRepo{db: db}
}

// InitSchema creates the meetings table and tunes the connection.
func (r *SQLiteRepo) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
	PRAGMA busy_timeout = 10000;
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous  = NORMAL;
	PRAGMA foreign_keys = ON;

	create table if not exists meetings (
		id            integer primary key autoincrement not null,
		title         text not null,
		filename      text not null,
		filepath      text not null,
		duration      real,
		status        text not null default 'pending',
		transcript    text,
		summary       text,
		language      text,
		error_message text,
		created_at    text not null,
		updated_at    text not null
	);`)
	if err != nil {
		return fmt.Errorf("initializing meetings schema: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) Create(ctx context.Context, title, filename, filepath string, duration float64) (Meeting, error) {
	now := time.Now().UTC()
	m := Meeting{
		Title:     title,
		Filename:  filename,
		Filepath:  filepath,
		Duration:  duration,
		Status:    types.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := r.db.QueryRowContext(ctx, `
		insert into meetings (title, filename, filepath, duration, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id`,
		title, filename, filepath, duration, m.Status,
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	).Scan(&m.ID)
	if err != nil {
		return Meeting{}, fmt.Errorf("persisting meeting into sqlite: %w", err)
	}
	return m, nil
}

func (r *SQLiteRepo) Get(ctx context.Context, id int64) (Meeting, error) {
	var (
		m                    Meeting
		duration             sql.NullFloat64
		transcript, summary  sql.NullString
		language, errMessage sql.NullString
		createdAt, updatedAt string
	)

	err := r.db.QueryRowContext(ctx, `
		select id, title, filename, filepath, duration, status,
		       transcript, summary, language, error_message, created_at, updated_at
		from meetings where id = $1`, id,
	).Scan(&m.ID, &m.Title, &m.Filename, &m.Filepath, &duration, &m.Status,
		&transcript, &summary, &language, &errMessage, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Meeting{}, ErrNotFound
	}
	if err != nil {
		return Meeting{}, fmt.Errorf("get meeting %d: %w", id, err)
	}

	m.Duration = duration.Float64
	m.Transcript = transcript.String
	m.Summary = summary.String
	m.Language = language.String
	m.ErrorMessage = errMessage.String
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return m, nil
}

func (r *SQLiteRepo) List(ctx context.Context, skip, limit int) ([]Meeting, error) {
	rows, err := r.db.QueryContext(ctx, `
		select id, title, filename, filepath, duration, status,
		       transcript, summary, language, error_message, created_at, updated_at
		from meetings
		order by created_at desc, id desc
		limit $1 offset $2`, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("listing meetings: %w", err)
	}
	defer rows.Close()

	var out []Meeting
	for rows.Next() {
		var (
			m                    Meeting
			duration             sql.NullFloat64
			transcript, summary  sql.NullString
			language, errMessage sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&m.ID, &m.Title, &m.Filename, &m.Filepath, &duration, &m.Status,
			&transcript, &summary, &language, &errMessage, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning meeting row: %w", err)
		}
		m.Duration = duration.Float64
		m.Transcript = transcript.String
		m.Summary = summary.String
		m.Language = language.String
		m.ErrorMessage = errMessage.String
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `delete from meetings where id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting meeting %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetForTranscribe clears prior results before a re-run.
func (r *SQLiteRepo) ResetForTranscribe(ctx context.Context, id int64) error {
	return r.update(ctx, id, `
		update meetings
		set status = $1, transcript = null, summary = null, error_message = null, updated_at = $2
		where id = $3`,
		types.StatusPending, now(), id)
}

// SaveTranscript writes the formatted transcript, detected language, and the
// branch status (completed for transcribe-only, summarizing otherwise).
func (r *SQLiteRepo) SaveTranscript(ctx context.Context, id int64, transcript, language, status string) error {
	return r.update(ctx, id, `
		update meetings
		set transcript = $1, language = $2, status = $3, updated_at = $4
		where id = $5`,
		transcript, language, status, now(), id)
}

// UpdateTranscript replaces the transcript text after manual editing.
func (r *SQLiteRepo) UpdateTranscript(ctx context.Context, id int64, transcript string) error {
	return r.update(ctx, id, `
		update meetings set transcript = $1, updated_at = $2 where id = $3`,
		transcript, now(), id)
}

// UpdateTitle renames a meeting.
func (r *SQLiteRepo) UpdateTitle(ctx context.Context, id int64, title string) error {
	return r.update(ctx, id, `
		update meetings set title = $1, updated_at = $2 where id = $3`,
		title, now(), id)
}

func (r *SQLiteRepo) SetStatus(ctx context.Context, id int64, status string) error {
	return r.update(ctx, id, `
		update meetings set status = $1, updated_at = $2 where id = $3`,
		status, now(), id)
}

// CompleteSummary attaches the summary and marks the record completed.
func (r *SQLiteRepo) CompleteSummary(ctx context.Context, id int64, summary string) error {
	return r.update(ctx, id, `
		update meetings
		set summary = $1, status = $2, error_message = null, updated_at = $3
		where id = $4`,
		summary, types.StatusCompleted, now(), id)
}

// FailSummary marks the record completed with a descriptive error; a meeting
// with a working transcript but failed summary stays usable.
func (r *SQLiteRepo) FailSummary(ctx context.Context, id int64, message string) error {
	return r.update(ctx, id, `
		update meetings
		set status = $1, error_message = $2, updated_at = $3
		where id = $4`,
		types.StatusCompleted, message, now(), id)
}

// SetError moves the record to the terminal error state.
func (r *SQLiteRepo) SetError(ctx context.Context, id int64, message string) error {
	return r.update(ctx, id, `
		update meetings
		set status = $1, error_message = $2, updated_at = $3
		where id = $4`,
		types.StatusError, message, now(), id)
}

func (r *SQLiteRepo) update(ctx context.Context, id int64, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating meeting %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
