// Package session implements C10: the orchestrator that wires together
// every other component for one pipeline invocation — lock, discovery,
// download-and-extract, post-ingest — and the periodic re-entrancy guard
// that lets the whole thing run as a recurring task.
package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/phenodcc/crawler/internal/config"
	"github.com/phenodcc/crawler/internal/discovery"
	"github.com/phenodcc/crawler/internal/download"
	"github.com/phenodcc/crawler/internal/extract"
	"github.com/phenodcc/crawler/internal/lock"
	"github.com/phenodcc/crawler/internal/model"
	"github.com/phenodcc/crawler/internal/monitor"
	"github.com/phenodcc/crawler/internal/postingest"
	"github.com/phenodcc/crawler/internal/rating"
	"github.com/phenodcc/crawler/internal/tokenizer"
	"github.com/phenodcc/crawler/internal/tracker"
)

// Config bundles the decoded flags and properties session.Run needs;
// cmd/crawler builds this once at startup.
type Config struct {
	Flags   config.Flags
	Crawler config.CrawlerProperties
}

// Result is the outcome of one RunOnce call, enough for cmd/crawler to
// pick an exit code and internal/notify to compose a report.
type Result struct {
	Session model.CrawlingSession
	Status  model.Status
}

// Orchestrator guards against overlapping ticks (§4.10's re-entrancy
// guard) across repeated calls to RunOnce from the same process.
type Orchestrator struct {
	store  *tracker.Store
	cfg    Config
	mu     sync.Mutex
	active bool
}

func New(store *tracker.Store, cfg Config) *Orchestrator {
	return &Orchestrator{store: store, cfg: cfg}
}

// RunOnce acquires the instance lock, runs discovery-then-download (with
// its attendant extraction pool) to completion, runs post-ingest, and
// closes the session with an aggregate status. A tick that finds a
// previous tick of this same orchestrator still running is skipped
// rather than queued.
func (o *Orchestrator) RunOnce(ctx context.Context) (Result, error) {
	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return Result{}, ErrTickSkipped
	}
	o.active = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.active = false
		o.mu.Unlock()
	}()

	lockPath := o.cfg.Crawler.LockPath
	if lockPath == "" {
		lockPath = lock.DefaultPath
	}
	l, _, err := lock.Acquire(lockPath)
	if err != nil {
		return Result{}, fmt.Errorf("session: acquire lock: %w", err)
	}
	defer l.Release()

	sess, err := o.store.OpenSession()
	if err != nil {
		return Result{}, fmt.Errorf("session: open session: %w", err)
	}

	mon, err := monitor.New(o.cfg.Crawler.MonitorRedisURL)
	if err != nil {
		log.Printf("session: monitor disabled: %v", err)
		mon = nil
	}
	defer mon.Close()

	status := o.run(ctx, sess, mon)

	if err := o.store.CloseSession(sess.ID, status); err != nil {
		return Result{Session: sess, Status: status}, fmt.Errorf("session: close session: %w", err)
	}
	return Result{Session: sess, Status: status}, nil
}

// ErrTickSkipped is returned when a tick is skipped because a previous
// one is still running.
var ErrTickSkipped = fmt.Errorf("session: previous tick still running, skipped")

func (o *Orchestrator) run(ctx context.Context, sess model.CrawlingSession, mon *monitor.Monitor) model.Status {
	backupDir := o.cfg.Flags.DataDir
	for _, todo := range model.ProcessingTypes {
		if err := os.MkdirAll(filepath.Join(backupDir, string(todo)), os.ModePerm); err != nil {
			log.Printf("session: mkdir %s: %v", todo, err)
			return model.StatusFailed
		}
	}

	tok, err := tokenizer.New(o.cfg.Crawler.ZipPattern, o.cfg.Crawler.XMLPattern, o.store.KnownCentre)
	if err != nil {
		log.Printf("session: build tokenizer: %v", err)
		return model.StatusFailed
	}

	sources, err := o.store.ListActiveSources()
	if err != nil {
		log.Printf("session: list active sources: %v", err)
		return model.StatusFailed
	}

	mon.Report(ctx, "discovery", len(sources), o.cfg.Flags.PoolSize)
	// Discovery fully drains before downloads begin (§5's ordering
	// guarantee); discovery.Run itself does not return until its pool
	// has processed every source.
	if err := discovery.Run(ctx, o.store, tok, sources, o.cfg.Flags.PoolSize); err != nil {
		log.Printf("session: discovery: %v", err)
		return model.StatusFailed
	}
	mon.Report(ctx, "discovery", 0, o.cfg.Flags.PoolSize)

	mon.Report(ctx, "download", o.cfg.Flags.NumDownloaders, o.cfg.Flags.NumDownloaders)
	if err := o.runDownloadAndExtract(ctx, tok); err != nil {
		log.Printf("session: download/extract: %v", err)
		return model.StatusFailed
	}
	mon.Report(ctx, "download", 0, o.cfg.Flags.NumDownloaders)

	pgCfg := postingest.Config{
		BackupDir:  backupDir,
		Serializer: postingest.Tool{Binary: o.cfg.Crawler.SerializerPath, PropertiesPath: o.cfg.Flags.SerializerProps},
		Integrity:  postingest.Tool{Binary: o.cfg.Crawler.IntegrityPath, PropertiesPath: o.cfg.Flags.CrawlerProps},
		Context:    postingest.Tool{Binary: o.cfg.Crawler.ContextPath, PropertiesPath: o.cfg.Flags.ContextBuilderProps},
		Overview:   postingest.Tool{Binary: o.cfg.Crawler.OverviewPath, PropertiesPath: o.cfg.Flags.CrawlerProps},
		OverviewDB: o.cfg.Crawler.OverviewDatabase,
	}
	status, err := postingest.Run(ctx, o.store, sess.ID, pgCfg)
	if err != nil {
		log.Printf("session: post-ingest: %v", err)
		return model.StatusFailed
	}
	return status
}

// runDownloadAndExtract joins the bounded download pool and its
// attendant unbounded extraction pool (§5): each completed download is
// handed to extract.Run on its own goroutine rather than inline in the
// download worker, so extraction concurrency is never capped by
// NumDownloaders. Both pools fully drain before this call returns.
func (o *Orchestrator) runDownloadAndExtract(ctx context.Context, tok *tokenizer.Tokenizer) error {
	validate := extract.NewSubprocessValidator(
		o.cfg.Crawler.SpecimenValidatorPath,
		o.cfg.Crawler.ExperimentValidatorPath,
		o.cfg.Flags.ValidatorProps,
		o.cfg.Flags.ValidationResourceProps,
		filepath.Join(o.cfg.Flags.DataDir, "logs"),
	)

	var extractGroup errgroup.Group
	submit := func(ctx context.Context, ex download.Extracted) error {
		extractGroup.Go(func() error {
			return extract.Run(ctx, o.store, tok, validate, ex, o.cfg.Flags.PoolSize)
		})
		return nil
	}

	downloadErr := download.Run(ctx, o.store, o.cfg.Flags.NumDownloaders, o.cfg.Flags.MaxRetries, o.cfg.Flags.DataDir, rating.AffinityStrategy{}, submit)
	extractErr := extractGroup.Wait()
	if downloadErr != nil {
		return downloadErr
	}
	return extractErr
}
