package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/romcoding/scraper/internal/archive"
	"github.com/romcoding/scraper/internal/model"
)

// fakeSession archives pages through a configurable function.
type fakeSession struct {
	engine    *fakeEngine
	archiveFn func(ctx context.Context, pageURL string) (*model.ArchivedPage, error)
}

// Archive implements the archive.Session interface.
func (s *fakeSession) Archive(ctx context.Context, pageURL string) (*model.ArchivedPage, error) {
	return s.archiveFn(ctx, pageURL)
}

// Close implements the archive.Session interface.
func (s *fakeSession) Close() error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	s.engine.closed++
	return nil
}

// fakeEngine hands out fakeSessions and counts their lifecycle.
type fakeEngine struct {
	mu         sync.Mutex
	sessions   int
	closed     int
	sessionErr error
	archiveFn  func(ctx context.Context, pageURL string) (*model.ArchivedPage, error)
}

// Name implements the archive.Engine interface.
func (e *fakeEngine) Name() string {
	return "fake"
}

// NewSession implements the archive.Engine interface.
func (e *fakeEngine) NewSession(_ context.Context) (archive.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessionErr != nil {
		return nil, e.sessionErr
	}
	e.sessions++
	return &fakeSession{engine: e, archiveFn: e.archiveFn}, nil
}

// Close implements the archive.Engine interface.
func (e *fakeEngine) Close() error {
	return nil
}

// okArchiveFn returns a fetch function that succeeds with HTML naming
// the page URL.
func okArchiveFn(_ context.Context, pageURL string) (*model.ArchivedPage, error) {
	page := &model.ArchivedPage{
		URL:  pageURL,
		HTML: []byte("<html><body>" + pageURL + "</body></html>"),
	}
	page.ComputeChecksum()
	return page, nil
}

// TestPoolProcess tests concurrent page archiving.
func TestPoolProcess(t *testing.T) {
	t.Parallel()

	t.Run("results align with task order", func(t *testing.T) {
		t.Parallel()

		engine := &fakeEngine{archiveFn: okArchiveFn}
		outputDir := t.TempDir()

		tasks := []Task{
			{URL: "https://example.com/", Path: "index.html"},
			{URL: "https://example.com/about", Path: "about.html"},
			{URL: "https://example.com/blog/post-1", Path: "blog/post-1.html"},
			{URL: "https://example.com/blog/post-2", Path: "blog/post-2.html"},
			{URL: "https://example.com/contact", Path: "contact.html"},
		}

		pool := NewPool(engine, outputDir, WithPoolConcurrency(3), WithPoolLogger(testLogger()))
		results, err := pool.Process(context.Background(), tasks)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(results) != len(tasks) {
			t.Fatalf("expected %d results, got %d", len(tasks), len(results))
		}
		for i, result := range results {
			if result.URL != tasks[i].URL {
				t.Errorf("result %d: expected URL %q, got %q", i, tasks[i].URL, result.URL)
			}
			if result.Status != model.StatusArchived {
				t.Errorf("result %d: expected archived, got %q (%s)", i, result.Status, result.Error)
			}
			if result.Checksum == "" {
				t.Errorf("result %d: expected a checksum", i)
			}

			data, err := os.ReadFile(filepath.Join(outputDir, filepath.FromSlash(tasks[i].Path)))
			if err != nil {
				t.Fatalf("result %d: reading archived file: %v", i, err)
			}
			if !strings.Contains(string(data), tasks[i].URL) {
				t.Errorf("result %d: archived file does not contain its page content", i)
			}
		}
	})

	t.Run("spawns one session per worker and closes them", func(t *testing.T) {
		t.Parallel()

		engine := &fakeEngine{archiveFn: okArchiveFn}

		tasks := make([]Task, 6)
		for i := range tasks {
			tasks[i] = Task{
				URL:  "https://example.com/page",
				Path: "page.html",
			}
		}

		pool := NewPool(engine, t.TempDir(), WithPoolConcurrency(2), WithPoolLogger(testLogger()))
		if _, err := pool.Process(context.Background(), tasks); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if engine.sessions != 2 {
			t.Errorf("expected 2 sessions for 2 workers, got %d", engine.sessions)
		}
		if engine.closed != engine.sessions {
			t.Errorf("expected every session closed, got %d of %d", engine.closed, engine.sessions)
		}
	})

	t.Run("never spawns more workers than tasks", func(t *testing.T) {
		t.Parallel()

		engine := &fakeEngine{archiveFn: okArchiveFn}

		tasks := []Task{{URL: "https://example.com/", Path: "index.html"}}

		pool := NewPool(engine, t.TempDir(), WithPoolConcurrency(8), WithPoolLogger(testLogger()))
		if _, err := pool.Process(context.Background(), tasks); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if engine.sessions != 1 {
			t.Errorf("expected 1 session for 1 task, got %d", engine.sessions)
		}
	})

	t.Run("page failures are recorded not returned", func(t *testing.T) {
		t.Parallel()

		engine := &fakeEngine{
			archiveFn: func(ctx context.Context, pageURL string) (*model.ArchivedPage, error) {
				if strings.Contains(pageURL, "broken") {
					return nil, errors.New("rendering page: boom")
				}
				return okArchiveFn(ctx, pageURL)
			},
		}

		tasks := []Task{
			{URL: "https://example.com/good", Path: "good.html"},
			{URL: "https://example.com/broken", Path: "broken.html"},
			{URL: "https://example.com/fine", Path: "fine.html"},
		}

		pool := NewPool(engine, t.TempDir(), WithPoolConcurrency(1), WithPoolLogger(testLogger()))
		results, err := pool.Process(context.Background(), tasks)
		if err != nil {
			t.Fatalf("expected page failure to stay in results, got %v", err)
		}

		if results[0].Status != model.StatusArchived {
			t.Errorf("expected first page archived, got %q", results[0].Status)
		}
		if results[1].Status != model.StatusFailed {
			t.Errorf("expected second page failed, got %q", results[1].Status)
		}
		if !strings.Contains(results[1].Error, "boom") {
			t.Errorf("expected failure cause recorded, got %q", results[1].Error)
		}
		if results[2].Status != model.StatusArchived {
			t.Errorf("expected third page archived, got %q", results[2].Status)
		}
	})

	t.Run("write failures are recorded not returned", func(t *testing.T) {
		t.Parallel()

		engine := &fakeEngine{archiveFn: okArchiveFn}

		// A regular file where the output root should be makes every
		// directory creation fail
		outputDir := filepath.Join(t.TempDir(), "occupied")
		if err := os.WriteFile(outputDir, []byte("in the way"), 0600); err != nil {
			t.Fatal(err)
		}

		tasks := []Task{{URL: "https://example.com/a", Path: "sub/a.html"}}

		pool := NewPool(engine, outputDir, WithPoolConcurrency(1), WithPoolLogger(testLogger()))
		results, err := pool.Process(context.Background(), tasks)
		if err != nil {
			t.Fatalf("expected write failure to stay in results, got %v", err)
		}

		if results[0].Status != model.StatusFailed {
			t.Errorf("expected failed, got %q", results[0].Status)
		}
		if !strings.Contains(results[0].Error, "directory") {
			t.Errorf("expected directory error recorded, got %q", results[0].Error)
		}
	})

	t.Run("cancellation finishes the current page and skips the rest", func(t *testing.T) {
		t.Parallel()

		started := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once

		engine := &fakeEngine{
			archiveFn: func(ctx context.Context, pageURL string) (*model.ArchivedPage, error) {
				once.Do(func() { close(started) })
				<-release
				return okArchiveFn(ctx, pageURL)
			},
		}

		tasks := []Task{
			{URL: "https://example.com/first", Path: "first.html"},
			{URL: "https://example.com/second", Path: "second.html"},
			{URL: "https://example.com/third", Path: "third.html"},
		}

		outputDir := t.TempDir()
		pool := NewPool(engine, outputDir, WithPoolConcurrency(1), WithPoolLogger(testLogger()))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		done := make(chan struct{})
		var results []model.PageResult
		var processErr error
		go func() {
			defer close(done)
			results, processErr = pool.Process(ctx, tasks)
		}()

		<-started
		cancel()
		close(release)
		<-done

		if !errors.Is(processErr, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", processErr)
		}

		if results[0].Status != model.StatusArchived {
			t.Errorf("expected in-flight page to finish, got %q (%s)", results[0].Status, results[0].Error)
		}
		if _, err := os.Stat(filepath.Join(outputDir, "first.html")); err != nil {
			t.Errorf("expected in-flight page written to disk: %v", err)
		}

		for i := 1; i < len(results); i++ {
			if results[i].Status != model.StatusSkipped {
				t.Errorf("result %d: expected skipped, got %q", i, results[i].Status)
			}
			if results[i].URL != tasks[i].URL {
				t.Errorf("result %d: expected URL kept on skipped result, got %q", i, results[i].URL)
			}
		}
	})

	t.Run("session creation failure aborts the run", func(t *testing.T) {
		t.Parallel()

		engine := &fakeEngine{
			sessionErr: errors.New("browser executable not found"),
			archiveFn:  okArchiveFn,
		}

		tasks := []Task{
			{URL: "https://example.com/a", Path: "a.html"},
			{URL: "https://example.com/b", Path: "b.html"},
		}

		pool := NewPool(engine, t.TempDir(), WithPoolConcurrency(2), WithPoolLogger(testLogger()))
		results, err := pool.Process(context.Background(), tasks)
		if err == nil {
			t.Fatal("expected an error when no session can be created")
		}
		if !strings.Contains(err.Error(), "browser executable not found") {
			t.Errorf("expected cause in error, got %v", err)
		}

		for i, result := range results {
			if result.Status != model.StatusSkipped {
				t.Errorf("result %d: expected skipped, got %q", i, result.Status)
			}
		}
	})

	t.Run("empty task list needs no sessions", func(t *testing.T) {
		t.Parallel()

		engine := &fakeEngine{archiveFn: okArchiveFn}

		pool := NewPool(engine, t.TempDir(), WithPoolLogger(testLogger()))
		results, err := pool.Process(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("expected no results, got %d", len(results))
		}
		if engine.sessions != 0 {
			t.Errorf("expected no sessions, got %d", engine.sessions)
		}
	})
}
