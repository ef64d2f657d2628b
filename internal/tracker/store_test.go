package tracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phenodcc/crawler/internal/model"
	"github.com/phenodcc/crawler/internal/tokenizer"
)

func newTestStore(t *testing.T) (*Store, int64) {
	db, err := Open("sqlite://:memory:", nil)
	require.NoError(t, err)
	require.NoError(t, db.CreateTestSchema())
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`INSERT INTO centre (short_name, name, active) VALUES ('ABCD', 'Centre ABCD', 1)`)
	require.NoError(t, err)

	res, err := db.Exec(`INSERT INTO file_source (centre_id, hostname, protocol, base_path, resource_state) VALUES (1, 'ftp.example.org', 'ftp', '/', 'available')`)
	require.NoError(t, err)
	sourceID, err := res.LastInsertId()
	require.NoError(t, err)

	return NewStore(db), sourceID
}

func TestGetOrCreateZipFile_Idempotent(t *testing.T) {
	s, _ := newTestStore(t)
	tok := tokenizer.Tokens{Kind: tokenizer.KindZip, Centre: "ABCD", Year: 2014, Month: 1, Day: 15, Increment: 1}

	var wg sync.WaitGroup
	ids := make([]int64, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			zf, err := s.GetOrCreateZipFile("ABCD_20140115_1.zip", tok, 1024)
			require.NoError(t, err)
			ids[i] = zf.ID
		}(i)
	}
	wg.Wait()

	first := ids[0]
	for _, id := range ids {
		assert.Equal(t, first, id)
	}
}

func TestGetOrCreateZipFile_NoTokensStillCreatesRow(t *testing.T) {
	s, _ := newTestStore(t)
	zf, err := s.GetOrCreateZipFile("garbage.zip", tokenizer.Tokens{Kind: tokenizer.KindNone}, 10)
	require.NoError(t, err)
	assert.Nil(t, zf.CentreID)
}

func TestTakeDownloadJob_ExactlyOneWinner(t *testing.T) {
	s, _ := newTestStore(t)
	zf, err := s.GetOrCreateZipFile("ABCD_20140115_1.zip", tokenizer.Tokens{Kind: tokenizer.KindZip, Centre: "ABCD", Year: 2014, Month: 1, Day: 15, Increment: 1}, 10)
	require.NoError(t, err)
	za, err := s.GetOrCreateZipAction(zf.ID, model.ActionAdd)
	require.NoError(t, err)
	_, err = s.EscalateZipAction(za.ID, model.PhaseStatus{Phase: model.PhaseZipName, Status: model.StatusDone})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wins := make([]bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.TakeDownloadJob(za.ID)
			require.NoError(t, err)
			wins[i] = ok
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, w := range wins {
		if w {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	after, err := s.GetZipAction(za.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseDownload, after.Phase)
	assert.Equal(t, model.StatusRunning, after.Status)
}

func TestTakeDownloadJob_WrongState(t *testing.T) {
	s, _ := newTestStore(t)
	zf, err := s.GetOrCreateZipFile("ABCD_20140115_2.zip", tokenizer.Tokens{Kind: tokenizer.KindZip, Centre: "ABCD", Year: 2014, Month: 1, Day: 15, Increment: 2}, 10)
	require.NoError(t, err)
	za, err := s.GetOrCreateZipAction(zf.ID, model.ActionAdd)
	require.NoError(t, err)

	ok, err := s.TakeDownloadJob(za.ID)
	require.NoError(t, err)
	assert.False(t, ok, "action is still running at zip_name, not done")
}

func TestEscalateXmlFile_CascadesToDownloadAndAction(t *testing.T) {
	s, sourceID := newTestStore(t)
	zf, err := s.GetOrCreateZipFile("ABCD_20140115_3.zip", tokenizer.Tokens{Kind: tokenizer.KindZip, Centre: "ABCD", Year: 2014, Month: 1, Day: 15, Increment: 3}, 10)
	require.NoError(t, err)
	za, err := s.GetOrCreateZipAction(zf.ID, model.ActionAdd)
	require.NoError(t, err)
	_, err = s.EscalateZipAction(za.ID, model.PhaseStatus{Phase: model.PhaseZipName, Status: model.StatusDone})
	require.NoError(t, err)
	ok, err := s.TakeDownloadJob(za.ID)
	require.NoError(t, err)
	require.True(t, ok)

	fshz, err := s.GetOrCreateFileSourceHasZip(sourceID, za.ID, 30)
	require.NoError(t, err)
	dl, err := s.CreateZipDownload(fshz.ID)
	require.NoError(t, err)
	_, err = s.EscalateZipAction(za.ID, model.PhaseStatus{Phase: model.PhaseDownload, Status: model.StatusDone})
	require.NoError(t, err)

	xf, err := s.GetOrCreateXmlFile(dl.ID, "ABCD_20140115_3_specimen.xml",
		tokenizer.Tokens{Kind: tokenizer.KindXML, Centre: "ABCD", Year: 2014, Month: 1, Day: 15, Increment: 3, Doc: tokenizer.DocKindSpecimen}, 5)
	require.NoError(t, err)

	_, err = s.EscalateXmlFile(xf.ID, model.PhaseStatus{Phase: model.PhaseXSD, Status: model.StatusFailed})
	require.NoError(t, err)

	gotXf, err := s.GetXmlFile(xf.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, gotXf.Status)

	gotAction, err := s.GetZipAction(za.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseXSD, gotAction.Phase)
	assert.Equal(t, model.StatusFailed, gotAction.Status)
}

func TestListXmlFilesByPhaseStatus_FiltersByPhaseStatusAndSpecimen(t *testing.T) {
	s, sourceID := newTestStore(t)
	zf, err := s.GetOrCreateZipFile("ABCD_20140115_4.zip", tokenizer.Tokens{Kind: tokenizer.KindZip, Centre: "ABCD", Year: 2014, Month: 1, Day: 15, Increment: 4}, 10)
	require.NoError(t, err)
	za, err := s.GetOrCreateZipAction(zf.ID, model.ActionAdd)
	require.NoError(t, err)
	fshz, err := s.GetOrCreateFileSourceHasZip(sourceID, za.ID, 0)
	require.NoError(t, err)
	dl, err := s.CreateZipDownload(fshz.ID)
	require.NoError(t, err)

	_, err = s.GetOrCreateXmlFile(dl.ID, "a_specimen.xml", tokenizer.Tokens{Kind: tokenizer.KindXML, Centre: "ABCD", Doc: tokenizer.DocKindSpecimen, Year: 2014, Month: 1, Day: 1}, 1)
	require.NoError(t, err)
	spec, err := s.GetOrCreateXmlFile(dl.ID, "b_specimen.xml", tokenizer.Tokens{Kind: tokenizer.KindXML, Centre: "ABCD", Doc: tokenizer.DocKindSpecimen, Year: 2014, Month: 1, Day: 1}, 1)
	require.NoError(t, err)

	_, err = s.EscalateXmlFile(spec.ID, model.PhaseStatus{Phase: model.PhaseXSD, Status: model.StatusDone})
	require.NoError(t, err)

	list, err := s.ListXmlFilesByPhaseStatus(model.PhaseXSD, model.StatusDone, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Specimen)
}
