package archive

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/romcoding/scraper/internal/config"
	"github.com/romcoding/scraper/internal/model"
)

// Engine produces archiving sessions for one engine implementation.
//
// Two engines exist: "chrome" drives a headless browser and captures the
// rendered DOM, so JavaScript-built pages archive correctly; "static"
// fetches the served markup over plain HTTP, which is faster and needs no
// browser install. Both hand the captured document to the same Inliner,
// so their output format is identical.
type Engine interface {
	// Name returns the engine identifier as used in configuration.
	Name() string

	// NewSession creates an isolated archiving session. Each worker owns
	// exactly one session; a session must never be shared between
	// goroutines.
	NewSession(ctx context.Context) (Session, error)

	// Close releases engine-wide resources. Close sessions first.
	Close() error
}

// Session archives pages one at a time.
type Session interface {
	// Archive renders the page at pageURL, inlines its stylesheets and
	// images, and returns the self-contained document. The session applies
	// the configured per-page timeout itself; pages that exceed it fail
	// with ErrPageLoadTimeout.
	Archive(ctx context.Context, pageURL string) (*model.ArchivedPage, error)

	// Close releases the session's resources.
	Close() error
}

// NewEngine creates the archive engine selected by the configuration.
func NewEngine(cfg *config.Config, logger *slog.Logger) (Engine, error) {
	switch cfg.Engine {
	case config.EngineChrome:
		return NewChromeEngine(cfg, logger), nil
	case config.EngineStatic:
		return NewStaticEngine(cfg, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownEngine, cfg.Engine)
	}
}

// newLimiter builds the politeness limiter shared by an engine's sessions.
// The limiter paces page and asset fetches together; nil means unlimited.
// rate.Limiter is safe for concurrent use, so one instance serves all
// workers.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}
