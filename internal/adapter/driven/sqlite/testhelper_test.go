package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
)

// setupTestDB creates a named shared in-memory SQLite database for testing.
// Writer and reader connections share the same in-memory database via
// cache=shared. A unique name derived from t.Name() isolates parallel tests.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Percent-encode the test name so it's a safe SQLite URI filename
	// component and cannot be misinterpreted as query parameters.
	safeName := url.PathEscape(t.Name())
	// WAL mode is not applicable to in-memory databases; omit the
	// journal_mode pragma.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		safeName,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("create test db writer: %v", err)
	}
	writer.SetMaxOpenConns(1)
	if err := writer.PingContext(context.Background()); err != nil {
		_ = writer.Close()
		t.Fatalf("ping test db writer: %v", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		t.Fatalf("create test db reader: %v", err)
	}
	reader.SetMaxOpenConns(4)
	if err := reader.PingContext(context.Background()); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		t.Fatalf("ping test db reader: %v", err)
	}

	db := &DB{Writer: writer, Reader: reader, path: dsn}

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

// registerTestRepo inserts a repository row so foreign keys on tasks,
// leases, and cursors are satisfied. Returns the derived repo id.
func registerTestRepo(t *testing.T, db *DB, owner, name string, mode model.RepoMode) string {
	t.Helper()

	repos := NewRepoRepo(db)
	cfg, err := repos.Register(context.Background(), model.RepoConfig{
		Owner:         owner,
		Name:          name,
		DefaultBranch: "main",
		Mode:          mode,
	})
	if err != nil {
		t.Fatalf("register test repo: %v", err)
	}
	return cfg.ID
}

// makeTask builds a minimal queued task for store tests.
func makeTask(repoID, id, title string, deps ...string) model.Task {
	return model.Task{
		RepoID:    repoID,
		ID:        id,
		Title:     title,
		Status:    model.StatusQueued,
		Priority:  "P2",
		DependsOn: deps,
		Path:      "tasks/" + id + "-" + model.Slugify(title) + ".md",
		UpdatedAt: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC),
	}
}
