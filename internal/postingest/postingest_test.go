package postingest

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/phenodcc/crawler/internal/model"
	"github.com/phenodcc/crawler/internal/tokenizer"
	"github.com/phenodcc/crawler/internal/tracker"
)

func newTestStore(t *testing.T) *tracker.Store {
	db, err := tracker.Open("sqlite://:memory:", nil)
	require.NoError(t, err)
	require.NoError(t, db.CreateTestSchema())
	t.Cleanup(func() { db.Close() })
	_, err = db.Exec(`INSERT INTO centre (id, short_name, name, active) VALUES (1, 'ABCD', 'Centre ABCD', 1)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO file_source (id, centre_id, hostname, protocol, base_path, resource_state) VALUES (1, 1, 'ftp.example.org', 'ftp', '/add/', 'available')`)
	require.NoError(t, err)
	return tracker.NewStore(db)
}

// seedXsdDoneDocument builds the full chain an extracted document rests
// on (ZipFile -> ZipAction -> FileSourceHasZip -> ZipDownload -> XmlFile)
// and writes the extracted XML file to disk, so post-ingest can resolve
// its path the same way extract.Run would have left it.
func seedXsdDoneDocument(t *testing.T, store *tracker.Store, backupDir, zipName, xmlName string, specimen bool) model.XmlFile {
	zf, err := store.GetOrCreateZipFile(zipName, tokenizer.Tokens{Kind: tokenizer.KindNone}, 0)
	require.NoError(t, err)
	za, err := store.GetOrCreateZipAction(zf.ID, model.ActionAdd)
	require.NoError(t, err)
	fshz, err := store.GetOrCreateFileSourceHasZip(1, za.ID, 0)
	require.NoError(t, err)
	dl, err := store.CreateZipDownload(fshz.ID)
	require.NoError(t, err)

	docKind := tokenizer.Tokens{Kind: tokenizer.KindNone}
	xf, err := store.GetOrCreateXmlFile(dl.ID, xmlName, docKind, 0)
	require.NoError(t, err)
	if specimen {
		_, err = store.DB().Exec(`UPDATE xml_file SET specimen = 1 WHERE id = ?`, xf.ID)
		require.NoError(t, err)
	}

	contentsDir := filepath.Join(backupDir, string(model.ActionAdd), zipName) + ".contents"
	require.NoError(t, os.MkdirAll(contentsDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(contentsDir, xmlName), []byte("<doc/>"), 0644))

	_, err = store.EscalateXmlFile(xf.ID, model.PhaseStatus{Phase: model.PhaseXSD, Status: model.StatusDone})
	require.NoError(t, err)

	got, err := store.GetXmlFile(xf.ID)
	require.NoError(t, err)
	return got
}

// shellTool writes a tiny bash script as a stand-in subprocess binary
// rather than depending on a compiled fixture.
func shellTool(t *testing.T, exitCode int) Tool {
	dir := t.TempDir()
	script := filepath.Join(dir, "tool.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/bash\nexit "+strconv.Itoa(exitCode)+"\n"), 0755))
	return Tool{Binary: script, PropertiesPath: filepath.Join(dir, "tool.properties")}
}

func TestRun_HappyPathAllToolsSucceed(t *testing.T) {
	backupDir := t.TempDir()
	store := newTestStore(t)
	xf := seedXsdDoneDocument(t, store, backupDir, "ABCD_20140115_1.zip", "ABCD_20140115_1_specimen.xml", true)

	session, err := store.OpenSession()
	require.NoError(t, err)

	cfg := Config{
		BackupDir:  backupDir,
		Serializer: shellTool(t, 0),
		Integrity:  shellTool(t, 0),
		Context:    shellTool(t, 0),
		Overview:   shellTool(t, 0),
		OverviewDB: "phenodcc_overview",
	}

	status, err := Run(context.Background(), store, session.ID, cfg)
	require.NoError(t, err)
	require.Equal(t, model.StatusDone, status)

	got, err := store.GetXmlFile(xf.ID)
	require.NoError(t, err)
	require.Equal(t, model.PhaseOverview, got.Phase)
	require.Equal(t, model.StatusDone, got.Status)
}

func TestRun_SerializerFailureStopsDocumentAtUpload(t *testing.T) {
	backupDir := t.TempDir()
	store := newTestStore(t)
	xf := seedXsdDoneDocument(t, store, backupDir, "ABCD_20140115_2.zip", "ABCD_20140115_2_specimen.xml", true)

	session, err := store.OpenSession()
	require.NoError(t, err)

	cfg := Config{
		BackupDir:  backupDir,
		Serializer: shellTool(t, 104),
		Integrity:  shellTool(t, 0),
		Context:    shellTool(t, 0),
		Overview:   shellTool(t, 0),
		OverviewDB: "phenodcc_overview",
	}

	status, err := Run(context.Background(), store, session.ID, cfg)
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, status)

	got, err := store.GetXmlFile(xf.ID)
	require.NoError(t, err)
	require.Equal(t, model.PhaseUpload, got.Phase)
	require.Equal(t, model.StatusFailed, got.Status)
}

func TestRun_UnconfiguredToolSkipsStageWithoutFailing(t *testing.T) {
	backupDir := t.TempDir()
	store := newTestStore(t)
	seedXsdDoneDocument(t, store, backupDir, "ABCD_20140115_3.zip", "ABCD_20140115_3_specimen.xml", true)

	session, err := store.OpenSession()
	require.NoError(t, err)

	cfg := Config{BackupDir: backupDir}

	status, err := Run(context.Background(), store, session.ID, cfg)
	require.NoError(t, err)
	require.Equal(t, model.StatusDone, status)
}

func TestUploadCandidates_SpecimensListedSeparatelyFromExperiments(t *testing.T) {
	backupDir := t.TempDir()
	store := newTestStore(t)
	experiment := seedXsdDoneDocument(t, store, backupDir, "ABCD_20140115_4.zip", "ABCD_20140115_4_experiment.xml", false)
	specimen := seedXsdDoneDocument(t, store, backupDir, "ABCD_20140115_5.zip", "ABCD_20140115_5_specimen.xml", true)

	docs, err := store.ListXmlFilesByPhaseStatus(model.PhaseXSD, model.StatusDone, true)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, specimen.ID, docs[0].ID)

	docs, err = store.ListXmlFilesByPhaseStatus(model.PhaseXSD, model.StatusDone, false)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, experiment.ID, docs[0].ID)
}
