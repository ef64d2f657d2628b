// Package postingest implements C9: the single-threaded driver that runs
// every XmlFile that has cleared schema validation through the serializer,
// integrity-checker, context-builder and overview-builder subprocess
// tools, in the strict specimen-before-experiment, creation-time order
// this stage requires.
package postingest

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strconv"

	"github.com/phenodcc/crawler/internal/model"
	"github.com/phenodcc/crawler/internal/tracker"
)

// Tool is one configured subprocess: its binary path plus the properties
// file it needs. A Tool with an empty PropertiesPath is skipped with a
// warning rather than failing the run.
type Tool struct {
	Binary         string
	PropertiesPath string
}

func (t Tool) configured() bool { return t.Binary != "" && t.PropertiesPath != "" }

// Config bundles the four subprocess tools plus the local directory
// layout post-ingest needs to find each XmlFile's extracted path.
type Config struct {
	BackupDir  string
	Serializer Tool
	Integrity  Tool
	Context    Tool
	Overview   Tool
	OverviewDB string
}

// Run drives one pass of the post-ingest algorithm for sessionID, and
// reports whether every document cleared every stage.
func Run(ctx context.Context, store *tracker.Store, sessionID int64, cfg Config) (model.Status, error) {
	ok := true

	for _, named := range []struct {
		name string
		tool Tool
	}{{"serializer", cfg.Serializer}, {"integrity checker", cfg.Integrity}, {"context builder", cfg.Context}, {"overview builder", cfg.Overview}} {
		if !named.tool.configured() {
			log.Printf("postingest: %s not configured, skipping it", named.name)
		}
	}

	if changed, err := runUpload(ctx, store, sessionID, cfg); err != nil {
		return model.StatusFailed, err
	} else if !changed {
		ok = false
	}

	if changed, err := runIntegrityAndContext(ctx, store, sessionID, cfg); err != nil {
		return model.StatusFailed, err
	} else if !changed {
		ok = false
	}

	overviewOK, err := runOverview(ctx, store, sessionID, cfg)
	if err != nil {
		return model.StatusFailed, err
	}
	if !overviewOK {
		ok = false
	}

	if ok {
		return model.StatusDone, nil
	}
	return model.StatusFailed, nil
}

// runUpload implements §4.9 step 1: specimens then experiments, each
// handed to the serializer subprocess.
func runUpload(ctx context.Context, store *tracker.Store, sessionID int64, cfg Config) (bool, error) {
	if !cfg.Serializer.configured() {
		return true, nil
	}
	ok := true
	for _, specimen := range []bool{true, false} {
		docs, err := store.ListXmlFilesByPhaseStatus(model.PhaseXSD, model.StatusDone, specimen)
		if err != nil {
			return false, fmt.Errorf("postingest: list upload candidates: %w", err)
		}
		for _, xf := range docs {
			if err := uploadOne(ctx, store, sessionID, cfg, xf); err != nil {
				return false, err
			}
			got, err := store.GetXmlFile(xf.ID)
			if err != nil {
				return false, err
			}
			if got.Status == model.StatusFailed {
				ok = false
			}
		}
	}
	return ok, nil
}

func uploadOne(ctx context.Context, store *tracker.Store, sessionID int64, cfg Config, xf model.XmlFile) error {
	if _, err := store.EscalateXmlFile(xf.ID, model.PhaseStatus{Phase: model.PhaseUpload, Status: model.StatusRunning}); err != nil {
		return err
	}

	xmlPath, _, err := resolveXmlPath(store, cfg.BackupDir, xf)
	if err != nil {
		return fail(store, xf.ID, model.PhaseUpload, fmt.Sprintf("resolve xml path: %v", err))
	}

	lastUpdate := "0"
	if xf.Created != nil {
		lastUpdate = strconv.FormatInt(xf.Created.Unix(), 10)
	}
	specimenFlag := "0"
	if xf.Specimen {
		specimenFlag = "1"
	}
	args := []string{strconv.FormatInt(xf.ID, 10), lastUpdate, cfg.Serializer.PropertiesPath, specimenFlag, xmlPath}

	exitCode, err := runTool(ctx, store, sessionID, logDir(cfg), model.PhaseUpload, cfg.Serializer.Binary, args)
	if err != nil {
		return fail(store, xf.ID, model.PhaseUpload, fmt.Sprintf("run serializer: %v", err))
	}
	if exitCode != 0 {
		return fail(store, xf.ID, model.PhaseUpload, exitCodeComment("serializer", exitCode))
	}
	_, err = store.EscalateXmlFile(xf.ID, model.PhaseStatus{Phase: model.PhaseData, Status: model.StatusPending})
	return err
}

// runIntegrityAndContext implements §4.9 step 2.
func runIntegrityAndContext(ctx context.Context, store *tracker.Store, sessionID int64, cfg Config) (bool, error) {
	if !cfg.Integrity.configured() && !cfg.Context.configured() {
		return true, nil
	}
	ok := true
	for _, specimen := range []bool{true, false} {
		docs, err := store.ListXmlFilesByPhaseStatus(model.PhaseData, model.StatusPending, specimen)
		if err != nil {
			return false, fmt.Errorf("postingest: list data candidates: %w", err)
		}
		for _, xf := range docs {
			if err := integrityAndContextOne(ctx, store, sessionID, cfg, xf); err != nil {
				return false, err
			}
			got, err := store.GetXmlFile(xf.ID)
			if err != nil {
				return false, err
			}
			if got.Status == model.StatusFailed {
				ok = false
			}
		}
	}
	return ok, nil
}

func integrityAndContextOne(ctx context.Context, store *tracker.Store, sessionID int64, cfg Config, xf model.XmlFile) error {
	xmlPath, _, err := resolveXmlPath(store, cfg.BackupDir, xf)
	if err != nil {
		return fail(store, xf.ID, model.PhaseData, fmt.Sprintf("resolve xml path: %v", err))
	}
	id := strconv.FormatInt(xf.ID, 10)

	if cfg.Integrity.configured() {
		exitCode, err := runTool(ctx, store, sessionID, logDir(cfg), model.PhaseData, cfg.Integrity.Binary, []string{id, cfg.Integrity.PropertiesPath, xmlPath})
		if err != nil {
			return fail(store, xf.ID, model.PhaseData, fmt.Sprintf("run integrity checker: %v", err))
		}
		if exitCode != 0 {
			return fail(store, xf.ID, model.PhaseData, exitCodeComment("integrity checker", exitCode))
		}
	}

	if !cfg.Context.configured() {
		_, err := store.EscalateXmlFile(xf.ID, model.PhaseStatus{Phase: model.PhaseContext, Status: model.StatusDone})
		return err
	}

	exitCode, err := runTool(ctx, store, sessionID, logDir(cfg), model.PhaseContext, cfg.Context.Binary, []string{id, cfg.Context.PropertiesPath, xmlPath})
	if err != nil {
		return fail(store, xf.ID, model.PhaseContext, fmt.Sprintf("run context builder: %v", err))
	}
	if exitCode != 0 {
		return fail(store, xf.ID, model.PhaseContext, exitCodeComment("context builder", exitCode))
	}
	_, err = store.EscalateXmlFile(xf.ID, model.PhaseStatus{Phase: model.PhaseOverview, Status: model.StatusPending})
	return err
}

// runOverview implements §4.9 step 3: one shell invocation for the whole
// batch, not per-document.
func runOverview(ctx context.Context, store *tracker.Store, sessionID int64, cfg Config) (bool, error) {
	if !cfg.Overview.configured() {
		return true, nil
	}

	var collected []model.XmlFile
	for _, specimen := range []bool{true, false} {
		docs, err := store.ListXmlFilesByPhaseStatus(model.PhaseOverview, model.StatusPending, specimen)
		if err != nil {
			return false, fmt.Errorf("postingest: list overview candidates: %w", err)
		}
		collected = append(collected, docs...)
	}
	if len(collected) == 0 {
		return true, nil
	}

	exitCode, err := runTool(ctx, store, sessionID, logDir(cfg), model.PhaseOverview, cfg.Overview.Binary, []string{cfg.OverviewDB})
	if err != nil {
		return false, fmt.Errorf("postingest: run overview builder: %w", err)
	}

	outcome := model.StatusDone
	if exitCode != 0 {
		outcome = model.StatusFailed
	}
	for _, xf := range collected {
		if _, err := store.EscalateXmlFile(xf.ID, model.PhaseStatus{Phase: model.PhaseOverview, Status: outcome}); err != nil {
			return false, err
		}
	}
	return exitCode == 0, nil
}

func fail(store *tracker.Store, xmlFileID int64, phase model.Phase, message string) error {
	if _, err := store.EscalateXmlFile(xmlFileID, model.PhaseStatus{Phase: phase, Status: model.StatusFailed}); err != nil {
		return err
	}
	return store.AppendXmlLog(xmlFileID, "postingest", message, nil, nil)
}

// resolveXmlPath rebuilds the path extract.Run wrote the document to:
// <backupDir>/<todo>/<zipFilename>.contents/<xmlName>.
func resolveXmlPath(store *tracker.Store, backupDir string, xf model.XmlFile) (string, model.ProcessingType, error) {
	zf, za, err := store.XmlFileArchive(xf.ID)
	if err != nil {
		return "", "", err
	}
	contentsDir := filepath.Join(backupDir, string(za.Todo), zf.Filename) + ".contents"
	return filepath.Join(contentsDir, xf.Name), za.Todo, nil
}

// logDir is where each subprocess invocation's own tee'd output lives,
// kept alongside the backup directory rather than the process's working
// directory so concurrent sessions never collide.
func logDir(cfg Config) string {
	return filepath.Join(cfg.BackupDir, "logs")
}

// exitCodeComment maps a subprocess's exit code to the descriptive
// comment it is assigned.
func exitCodeComment(tool string, exitCode int) string {
	reasons := map[int]string{
		100: "bad arguments",
		101: "database properties file not found",
		102: "missing XML file path",
		103: "database connection error",
		104: "serialization error",
	}
	if reason, ok := reasons[exitCode]; ok {
		return fmt.Sprintf("%s exited %d: %s", tool, exitCode, reason)
	}
	return fmt.Sprintf("%s exited %d: generic failure", tool, exitCode)
}
