// Package extract implements C8: unpacking a downloaded archive and
// driving each inner XML document through schema validation.
package extract

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/phenodcc/crawler/internal/download"
	"github.com/phenodcc/crawler/internal/model"
	"github.com/phenodcc/crawler/internal/tokenizer"
	"github.com/phenodcc/crawler/internal/tracker"
)

// Issue is one schema-validation finding, anchored at an optional
// line/column when the validator reports one.
type Issue struct {
	Line    *int
	Col     *int
	Message string
}

// Validator runs the configured specimen or experiment schema validator
// over an extracted XML file. Injected rather than hardcoded, per §9's
// "explicit dependency-injected services" design note.
type Validator func(ctx context.Context, xmlPath string, specimen bool) ([]Issue, error)

// Run implements C8 for one successful ZipDownload: create the
// extraction directory, get-or-create an XmlFile per qualifying archive
// entry, and drive each through an inner cached pool of poolSize
// validation tasks. It does not return until that inner pool drains
// (§4.8 step 4).
func Run(ctx context.Context, store *tracker.Store, tok *tokenizer.Tokenizer, validate Validator, ex download.Extracted, poolSize int) error {
	contentsDir := ex.ZipPath + ".contents"
	if err := os.MkdirAll(contentsDir, os.ModePerm); err != nil {
		return escalateFailure(store, ex.Download.ID, fmt.Errorf("mkdir contents: %w", err))
	}

	r, err := zip.OpenReader(ex.ZipPath)
	if err != nil {
		return escalateFailure(store, ex.Download.ID, fmt.Errorf("open archive: %w", err))
	}
	defer r.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(poolSize)

	for _, f := range r.File {
		f := f
		if f.FileInfo().IsDir() {
			continue
		}
		// §4.8 step 2: skip anything not a bare ".xml" name (a nested
		// path, e.g. "foo/bar.xml", is skipped silently).
		if !strings.HasSuffix(f.Name, ".xml") || strings.ContainsAny(f.Name, "/\\") {
			continue
		}
		g.Go(func() error {
			processEntry(ctx, store, tok, validate, ex, contentsDir, f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return escalateFailure(store, ex.Download.ID, err)
	}

	// The matrix ignores this proposal if any entry above already
	// escalated the download to a worse phase/status, so this call is
	// safe to make unconditionally — including when the archive held
	// zero qualifying entries (§8 boundary case).
	if _, err := store.EscalateZipDownload(ex.Download.ID, model.PhaseStatus{Phase: model.PhaseUnzip, Status: model.StatusDone}); err != nil {
		return fmt.Errorf("extract: escalate zip_download done: %w", err)
	}
	return nil
}

func escalateFailure(store *tracker.Store, downloadID int64, err error) error {
	if _, eerr := store.EscalateZipDownload(downloadID, model.PhaseStatus{Phase: model.PhaseUnzip, Status: model.StatusFailed}); eerr != nil {
		log.Printf("extract: escalate zip_download failed: %v", eerr)
	}
	return err
}

// processEntry implements §4.8 step 2 for a single archive entry. Every
// failure is recorded on the XmlFile row and swallowed here: the matrix
// cascade (EscalateXmlFile -> EscalateZipDownload -> EscalateZipAction)
// is the propagation mechanism, not a returned error.
func processEntry(ctx context.Context, store *tracker.Store, tok *tokenizer.Tokenizer, validate Validator, ex download.Extracted, contentsDir string, f *zip.File) {
	tokens := tok.Tokenize(f.Name)

	xf, err := store.GetOrCreateXmlFile(ex.Download.ID, f.Name, tokens, int64(f.UncompressedSize64))
	if err != nil {
		log.Printf("extract: get-or-create xml_file %s: %v", f.Name, err)
		return
	}

	outcome := model.StatusDone
	if tokens.Kind == tokenizer.KindNone {
		outcome = model.StatusFailed
	}
	if _, err := store.EscalateXmlFile(xf.ID, model.PhaseStatus{Phase: model.PhaseXMLName, Status: outcome}); err != nil {
		log.Printf("extract: escalate xml_name %s: %v", f.Name, err)
		return
	}
	if outcome == model.StatusFailed {
		return
	}

	if _, err := store.EscalateXmlFile(xf.ID, model.PhaseStatus{Phase: model.PhaseUnzip, Status: model.StatusRunning}); err != nil {
		log.Printf("extract: escalate unzip running %s: %v", f.Name, err)
		return
	}

	destPath := filepath.Join(contentsDir, f.Name)
	if err := writeEntry(f, destPath); err != nil {
		if _, eerr := store.EscalateXmlFile(xf.ID, model.PhaseStatus{Phase: model.PhaseUnzip, Status: model.StatusFailed}); eerr != nil {
			log.Printf("extract: escalate unzip failed %s: %v", f.Name, eerr)
		}
		if lerr := store.AppendXmlLog(xf.ID, "unzip", err.Error(), nil, nil); lerr != nil {
			log.Printf("extract: append xml_log %s: %v", f.Name, lerr)
		}
		return
	}

	if _, err := store.EscalateXmlFile(xf.ID, model.PhaseStatus{Phase: model.PhaseUnzip, Status: model.StatusDone}); err != nil {
		log.Printf("extract: escalate unzip done %s: %v", f.Name, err)
		return
	}

	runValidation(ctx, store, validate, xf, destPath)
}

func writeEntry(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// runValidation implements §4.8 step 3.
func runValidation(ctx context.Context, store *tracker.Store, validate Validator, xf model.XmlFile, path string) {
	issues, err := validate(ctx, path, xf.Specimen)
	if err != nil {
		log.Printf("extract: validator for %s: %v", xf.Name, err)
	}

	outcome := model.StatusDone
	if err != nil || len(issues) > 0 {
		outcome = model.StatusFailed
	}
	if _, eerr := store.EscalateXmlFile(xf.ID, model.PhaseStatus{Phase: model.PhaseXSD, Status: outcome}); eerr != nil {
		log.Printf("extract: escalate xsd %s: %v", xf.Name, eerr)
	}
	for _, iss := range issues {
		if lerr := store.AppendXmlLog(xf.ID, "xsd", iss.Message, iss.Line, iss.Col); lerr != nil {
			log.Printf("extract: append xml_log %s: %v", xf.Name, lerr)
		}
	}
}
