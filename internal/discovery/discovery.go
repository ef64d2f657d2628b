// Package discovery implements C6: one task per (centre, source), walking
// the add/edit/delete sub-directories of a FileSource and populating the
// tracker with ZipFile/ZipAction/FileSourceHasZip rows.
package discovery

import (
	"context"
	"fmt"
	"log"
	"path"

	"golang.org/x/sync/errgroup"

	"github.com/phenodcc/crawler/internal/filesource"
	"github.com/phenodcc/crawler/internal/model"
	"github.com/phenodcc/crawler/internal/tokenizer"
	"github.com/phenodcc/crawler/internal/tracker"
)

// Run fans one task out per FileSource, bounded to poolSize concurrent
// tasks at a time, the way gnidump's buildio bounds its parser workers
// with golang.org/x/sync/errgroup rather than an unbounded goroutine-per-
// item burst.
func Run(ctx context.Context, store *tracker.Store, tok *tokenizer.Tokenizer, sources []model.FileSource, poolSize int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(poolSize)

	for _, src := range sources {
		src := src
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			walkSource(store, tok, src)
			return nil
		})
	}
	return g.Wait()
}

// walkSource never returns an error to the pool: a single source's
// connect/list failure is recorded and skipped, it does not abort the
// other discoverers (§4.6 step 1: "Unsupported protocols are skipped
// with a recorded error").
func walkSource(store *tracker.Store, tok *tokenizer.Tokenizer, src model.FileSource) {
	driver, err := filesource.Dial(src)
	if err != nil {
		log.Printf("discovery: source %d: %v", src.ID, err)
		return
	}
	defer driver.Close()

	for _, todo := range model.ProcessingTypes {
		dir := path.Join(src.BasePath, string(todo))
		entries, err := driver.List(dir)
		if err != nil {
			log.Printf("discovery: source %d: list %s: %v", src.ID, dir, err)
			continue
		}
		for _, e := range entries {
			if err := processEntry(store, tok, src, todo, e); err != nil {
				log.Printf("discovery: source %d: %s: %v", src.ID, e.Name, err)
			}
		}
	}
}

// processEntry implements §4.6 step 3 for a single listed *.zip entry.
func processEntry(store *tracker.Store, tok *tokenizer.Tokenizer, src model.FileSource, todo model.ProcessingType, e filesource.Entry) error {
	tokens := tok.Tokenize(e.Name)

	zf, err := store.GetOrCreateZipFile(e.Name, tokens, e.Size)
	if err != nil {
		return fmt.Errorf("get-or-create zip_file: %w", err)
	}

	za, err := store.GetOrCreateZipAction(zf.ID, todo)
	if err != nil {
		return fmt.Errorf("get-or-create zip_action: %w", err)
	}

	outcome := model.StatusDone
	if tokens.Kind == tokenizer.KindNone {
		outcome = model.StatusFailed
	}
	if _, err := store.EscalateZipAction(za.ID, model.PhaseStatus{Phase: model.PhaseZipName, Status: outcome}); err != nil {
		return fmt.Errorf("escalate zip_action: %w", err)
	}

	// The rating column is a snapshot only; internal/rating recomputes the
	// real attempt order dynamically from current centre ids at download
	// time (§4.3), so discovery always seeds it at zero.
	if _, err := store.GetOrCreateFileSourceHasZip(src.ID, za.ID, 0); err != nil {
		return fmt.Errorf("get-or-create file_source_has_zip: %w", err)
	}
	return nil
}
