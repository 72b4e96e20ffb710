package result

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalnine/hypersweep/internal/fitness"
	"github.com/signalnine/hypersweep/internal/space"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps studies in a single SQLite file. WAL mode lets a monitor
// process read while a sweep writes.
type SQLiteStore struct {
	path string

	mu       sync.Mutex // serializes writers in this process
	db       *sql.DB
	readOnly bool
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema in %s: %w", path, err)
	}
	return &SQLiteStore{path: path, db: db}, nil
}

// OpenSQLiteReader opens an existing database read-only. A missing file is
// an error wrapping fs.ErrNotExist rather than a new empty database.
func OpenSQLiteReader(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	dsn := "file:" + path + "?mode=ro&_pragma=busy_timeout(10000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &SQLiteStore{path: path, db: db, readOnly: true}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS studies (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			direction TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS trials (
			id TEXT PRIMARY KEY,
			study_id TEXT NOT NULL REFERENCES studies(id),
			number INTEGER NOT NULL,
			state TEXT NOT NULL,
			value REAL,
			params TEXT NOT NULL,
			attrs TEXT,
			failure TEXT NOT NULL DEFAULT '',
			diagnostic TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			completed_at INTEGER,
			UNIQUE (study_id, number)
		);
	`)
	return err
}

func (s *SQLiteStore) OpenStudy(ctx context.Context, name string) (*Study, error) {
	if name == "" {
		return nil, errors.New("study name is required")
	}
	if s.readOnly {
		return nil, fmt.Errorf("creating study %q: %w", name, ErrReadOnly)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO studies (id, name, direction, created_at)
		VALUES (?, ?, 'maximize', ?)
		ON CONFLICT(name) DO NOTHING
	`, uuid.NewString(), name, time.Now().UTC().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("creating study %q: %w", name, err)
	}
	return s.FindStudy(ctx, name)
}

func (s *SQLiteStore) FindStudy(ctx context.Context, name string) (*Study, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, direction, created_at FROM studies WHERE name = ?`, name)
	st, err := scanStudy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%q: %w", name, ErrStudyNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading study %q: %w", name, err)
	}
	return st, nil
}

func (s *SQLiteStore) Studies(ctx context.Context) ([]*Study, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, direction, created_at FROM studies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing studies: %w", err)
	}
	defer rows.Close()
	var out []*Study
	for rows.Next() {
		st, err := scanStudy(rows)
		if err != nil {
			return nil, fmt.Errorf("listing studies: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateTrial(ctx context.Context, studyID string, params space.Config, startedAt time.Time) (*Trial, error) {
	if s.readOnly {
		return nil, fmt.Errorf("appending trial: %w", ErrReadOnly)
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding params: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM studies WHERE id = ?`, studyID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking study %s: %w", studyID, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("study %s: %w", studyID, ErrStudyNotFound)
	}

	id := uuid.NewString()
	var number int
	// Number assignment and insert are one statement so concurrent writers in
	// other processes cannot claim the same number.
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO trials (id, study_id, number, state, params, started_at)
		SELECT ?, ?, COALESCE(MAX(number) + 1, 0), ?, ?, ? FROM trials WHERE study_id = ?
		RETURNING number
	`, id, studyID, string(StateRunning), string(payload), startedAt.UnixNano(), studyID).Scan(&number)
	if err != nil {
		return nil, fmt.Errorf("appending trial: %w", err)
	}
	return &Trial{
		ID:        id,
		StudyID:   studyID,
		Number:    number,
		State:     StateRunning,
		Params:    params,
		StartedAt: startedAt,
	}, nil
}

func (s *SQLiteStore) FinishTrial(ctx context.Context, trialID string, c Completion) error {
	if s.readOnly {
		return fmt.Errorf("finishing trial %s: %w", trialID, ErrReadOnly)
	}
	var value sql.NullFloat64
	if c.State == StateComplete {
		value = sql.NullFloat64{Float64: c.Value, Valid: true}
	}
	var attrs sql.NullString
	if len(c.Attrs) > 0 {
		data, err := json.Marshal(c.Attrs)
		if err != nil {
			return fmt.Errorf("encoding attrs: %w", err)
		}
		attrs = sql.NullString{String: string(data), Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE trials
		SET state = ?, value = ?, attrs = ?, failure = ?, diagnostic = ?, completed_at = ?
		WHERE id = ? AND state = ?
	`, string(c.State), value, attrs, c.Failure, c.Diagnostic, c.CompletedAt.UnixNano(), trialID, string(StateRunning))
	if err != nil {
		return fmt.Errorf("finishing trial %s: %w", trialID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing trial %s: %w", trialID, err)
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trials WHERE id = ?`, trialID).Scan(&exists); err != nil {
		return fmt.Errorf("finishing trial %s: %w", trialID, err)
	}
	if exists == 0 {
		return fmt.Errorf("%s: %w", trialID, ErrTrialNotFound)
	}
	return nil
}

func (s *SQLiteStore) Trials(ctx context.Context, studyID string) ([]*Trial, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, study_id, number, state, value, params, attrs, failure, diagnostic, started_at, completed_at
		FROM trials WHERE study_id = ? ORDER BY number
	`, studyID)
	if err != nil {
		return nil, fmt.Errorf("listing trials: %w", err)
	}
	defer rows.Close()

	var out []*Trial
	for rows.Next() {
		var (
			t         Trial
			state     string
			value     sql.NullFloat64
			params    string
			attrs     sql.NullString
			started   int64
			completed sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.StudyID, &t.Number, &state, &value, &params, &attrs,
			&t.Failure, &t.Diagnostic, &started, &completed); err != nil {
			return nil, fmt.Errorf("listing trials: %w", err)
		}
		t.State = State(state)
		t.Value = fitness.Worst
		if value.Valid {
			t.Value = value.Float64
		}
		if err := json.Unmarshal([]byte(params), &t.Params); err != nil {
			return nil, fmt.Errorf("decoding params of trial %d: %w", t.Number, err)
		}
		if attrs.Valid {
			if err := json.Unmarshal([]byte(attrs.String), &t.Attrs); err != nil {
				return nil, fmt.Errorf("decoding attrs of trial %d: %w", t.Number, err)
			}
		}
		t.StartedAt = time.Unix(0, started).UTC()
		if completed.Valid {
			t.CompletedAt = time.Unix(0, completed.Int64).UTC()
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudy(r rowScanner) (*Study, error) {
	var (
		st      Study
		created int64
	)
	if err := r.Scan(&st.ID, &st.Name, &st.Direction, &created); err != nil {
		return nil, err
	}
	st.CreatedAt = time.Unix(0, created).UTC()
	return &st, nil
}
