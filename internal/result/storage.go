package result

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/signalnine/hypersweep/internal/space"
)

var (
	ErrStudyNotFound = errors.New("study not found")
	ErrTrialNotFound = errors.New("trial not found")
	ErrReadOnly      = errors.New("store is read-only")
)

// Store persists studies and their trials. Implementations serialize writes
// and may be read concurrently.
type Store interface {
	// OpenStudy returns the study with the given name, creating it if needed.
	OpenStudy(ctx context.Context, name string) (*Study, error)
	FindStudy(ctx context.Context, name string) (*Study, error)
	Studies(ctx context.Context) ([]*Study, error)

	// CreateTrial appends a running trial with the next free number.
	CreateTrial(ctx context.Context, studyID string, params space.Config, startedAt time.Time) (*Trial, error)
	// FinishTrial records the outcome of a running trial. Finishing an
	// already finished trial is a no-op.
	FinishTrial(ctx context.Context, trialID string, c Completion) error
	// Trials lists every trial of a study ordered by number.
	Trials(ctx context.Context, studyID string) ([]*Trial, error)

	Close() error
}

// Open resolves a storage location string:
//
//	sqlite:///rel.db, sqlite:////abs/path.db, path.db -> SQLite
//	memory, "" -> in-memory
func Open(ctx context.Context, location string) (Store, error) {
	path, err := sqlitePath(location)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return NewMemoryStore(), nil
	}
	return OpenSQLite(ctx, path)
}

// OpenReader resolves location like Open but never creates a database or its
// schema, and every write through the returned store fails with ErrReadOnly.
func OpenReader(ctx context.Context, location string) (Store, error) {
	path, err := sqlitePath(location)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return NewMemoryStore(), nil
	}
	return OpenSQLiteReader(ctx, path)
}

// sqlitePath returns the database file named by location, or "" for the
// in-memory store.
func sqlitePath(location string) (string, error) {
	switch {
	case location == "" || location == "memory" || location == "memory://":
		return "", nil
	case strings.HasPrefix(location, "sqlite://"):
		// SQLAlchemy convention: sqlite:///rel.db is relative,
		// sqlite:////abs/path.db is absolute.
		path := strings.TrimPrefix(strings.TrimPrefix(location, "sqlite://"), "/")
		if path == "" {
			return "", errors.New("sqlite path is required")
		}
		return path, nil
	case strings.HasSuffix(location, ".db") || strings.HasSuffix(location, ".sqlite"):
		return location, nil
	default:
		return "", fmt.Errorf("unsupported storage location: %s", location)
	}
}

// ArtifactPath names the results file of a study written at t.
func ArtifactPath(dir, study string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_results_%s.txt", study, t.Format("20060102_150405")))
}

// WriteArtifact writes a results file and points dir/latest.txt at it.
func WriteArtifact(dir, study string, t time.Time, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating results dir: %w", err)
	}
	path, err := filepath.Abs(ArtifactPath(dir, study, t))
	if err != nil {
		return "", fmt.Errorf("resolving results path: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing results: %w", err)
	}
	latest := filepath.Join(dir, "latest.txt")
	os.Remove(latest)
	if err := os.Symlink(path, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return path, nil
}
