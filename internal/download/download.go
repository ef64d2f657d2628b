// Package download implements C7: a pool of numDownloaders workers, each
// claiming a ZipAction, fetching bytes from its rated candidate sources,
// and handing a completed archive off to the extractor pool.
package download

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/phenodcc/crawler/internal/filesource"
	"github.com/phenodcc/crawler/internal/model"
	"github.com/phenodcc/crawler/internal/progress"
	"github.com/phenodcc/crawler/internal/rating"
	"github.com/phenodcc/crawler/internal/tracker"
)

// Extracted is handed to the extractor pool on every successful download.
type Extracted struct {
	Download model.ZipDownload
	ZipPath  string
	Todo     model.ProcessingType
}

// Submitter receives a completed download for extraction (§4.8). The
// session orchestrator wires this to the extraction pool's entry point.
type Submitter func(ctx context.Context, ex Extracted) error

// Run drives numWorkers downloaders over the tracker's current claimable
// set, exactly as listed once at start — additional claimable actions
// produced mid-run by a still-draining discovery pool are out of scope
// for this call, matching §5's "discovery fully drains before downloads
// begin".
func Run(ctx context.Context, store *tracker.Store, numWorkers, maxRetries int, backupDir string, strategy rating.Strategy, submit Submitter) error {
	ids, err := store.ListClaimableZipActions()
	if err != nil {
		return fmt.Errorf("download: list claimable: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	jobs := make(chan int64)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for _, id := range ids {
			select {
			case jobs <- id:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for i := 0; i < numWorkers; i++ {
		g.Go(func() error {
			return runWorker(ctx, store, jobs, maxRetries, backupDir, strategy, submit)
		})
	}
	return g.Wait()
}

func runWorker(ctx context.Context, store *tracker.Store, jobs <-chan int64, maxRetries int, backupDir string, strategy rating.Strategy, submit Submitter) error {
	cache := newConnCache()
	defer cache.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case actionID, ok := <-jobs:
			if !ok {
				return nil
			}
			claimed, err := store.TakeDownloadJob(actionID)
			if err != nil {
				log.Printf("download: take job %d: %v", actionID, err)
				continue
			}
			if !claimed {
				continue
			}
			if err := attemptAction(ctx, store, cache, actionID, maxRetries, backupDir, strategy, submit); err != nil {
				log.Printf("download: action %d: %v", actionID, err)
			}
		}
	}
}

// attemptAction implements §4.7 steps 3-4 for one claimed ZipAction.
func attemptAction(ctx context.Context, store *tracker.Store, cache *connCache, actionID int64, maxRetries int, backupDir string, strategy rating.Strategy, submit Submitter) error {
	za, err := store.GetZipAction(actionID)
	if err != nil {
		return fmt.Errorf("get zip_action: %w", err)
	}
	zf, err := store.GetZipFile(za.ZipID)
	if err != nil {
		return fmt.Errorf("get zip_file: %w", err)
	}

	candidates, err := store.ListCandidates(actionID)
	if err != nil {
		return fmt.Errorf("list candidates: %w", err)
	}
	if len(candidates) == 0 {
		return fmt.Errorf("no candidate sources for action %d", actionID)
	}

	plain := make([]rating.Candidate, len(candidates))
	fshzByUnderlying := make(map[int64]int64, len(candidates))
	for i, c := range candidates {
		plain[i] = c.Candidate
		fshzByUnderlying[c.SourceID] = c.FshzID
	}
	ranked := rating.Sort(plain, strategy)

	for _, r := range ranked {
		fshzID := fshzByUnderlying[r.Candidate.SourceID]
		src, err := store.GetFileSource(r.Candidate.SourceID)
		if err != nil {
			log.Printf("download: action %d: get source %d: %v", actionID, r.Candidate.SourceID, err)
			continue
		}

		if attemptSource(ctx, store, cache, actionID, src, fshzID, zf.Filename, za.Todo, maxRetries, backupDir, submit) {
			return nil
		}
	}
	return fmt.Errorf("action %d: all %d candidate source(s) exhausted", actionID, len(ranked))
}

// attemptSource implements §4.7 step 4 for one candidate source, up to
// maxRetries attempts, returning true on the first successful download.
func attemptSource(ctx context.Context, store *tracker.Store, cache *connCache, actionID int64, src model.FileSource, fshzID int64, filename string, todo model.ProcessingType, maxRetries int, backupDir string, submit Submitter) bool {
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return false
		}
		ok, err := attemptOnce(ctx, store, cache, actionID, src, fshzID, filename, todo, backupDir, submit)
		if ok {
			return true
		}
		if err != nil {
			log.Printf("download: %s attempt %d/%d for %s: %v", src.Hostname, attempt, maxRetries, filename, err)
		}
	}
	return false
}

func attemptOnce(ctx context.Context, store *tracker.Store, cache *connCache, actionID int64, src model.FileSource, fshzID int64, filename string, todo model.ProcessingType, backupDir string, submit Submitter) (bool, error) {
	driver, err := cache.get(src)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	dl, err := store.CreateZipDownload(fshzID)
	if err != nil {
		return false, fmt.Errorf("create zip_download: %w", err)
	}

	localPath := filepath.Join(backupDir, string(todo), filename)
	ok, err := stream(ctx, store, driver, src, filename, dl.ID, localPath)
	if err != nil || !ok {
		cache.invalidate(src)
		_ = store.SetZipDownloadDirect(dl.ID, model.PhaseDownload, model.StatusFailed)
		logErr := fmt.Sprintf("%v", err)
		if lerr := store.AppendZipLog(dl.ID, "transport", logErr, nil, nil); lerr != nil {
			log.Printf("download: append zip_log: %v", lerr)
		}
		return false, err
	}

	if err := store.SetZipDownloadDirect(dl.ID, model.PhaseDownload, model.StatusDone); err != nil {
		return false, fmt.Errorf("mark zip_download done: %w", err)
	}
	if _, err := store.EscalateZipAction(actionID, model.PhaseStatus{Phase: model.PhaseDownload, Status: model.StatusDone}); err != nil {
		return false, fmt.Errorf("escalate zip_action: %w", err)
	}

	dl.Phase, dl.Status = model.PhaseDownload, model.StatusDone
	if err := submit(ctx, Extracted{Download: dl, ZipPath: localPath, Todo: todo}); err != nil {
		return false, fmt.Errorf("submit extraction: %w", err)
	}
	return true, nil
}

// stream fetches filename from driver into localPath through the
// progress meter, reporting byte-level progress into the tracker at the
// 1 MiB boundaries of §4.4.
func stream(ctx context.Context, store *tracker.Store, driver filesource.Driver, src model.FileSource, filename string, downloadID int64, localPath string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(localPath), os.ModePerm); err != nil {
		return false, err
	}
	remotePath := src.BasePath + filename

	src2, size, err := driver.Open(remotePath)
	if err != nil {
		return false, err
	}
	defer src2.Close()

	out, err := os.Create(localPath)
	if err != nil {
		return false, err
	}
	defer out.Close()

	reporter := progress.ReporterFunc(func(bytesSoFar int64, at time.Time) error {
		return store.UpdateDownloadProgress(downloadID, bytesSoFar, at)
	})
	meter := progress.New(out, size, reporter)

	if _, err := copyCtx(ctx, meter, src2); err != nil {
		return false, err
	}
	return true, nil
}

// copyCtx is io.Copy that also checks ctx between buffer fills, so a
// cancelled session's in-flight transfers stop promptly (§5
// cancellation: cooperative at the worker's next check).
func copyCtx(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			written, werr := dst.Write(buf[:n])
			total += int64(written)
			if werr != nil {
				return total, werr
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
