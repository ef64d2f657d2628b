package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/phenodcc/crawler/internal/filesource"
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
	_, err = db.Exec(`INSERT INTO file_source (id, centre_id, hostname, protocol, base_path, resource_state) VALUES (1, 1, 'ftp.example.org', 'ftp', '/', 'available')`)
	require.NoError(t, err)
	return tracker.NewStore(db)
}

func newTokenizer(t *testing.T) *tokenizer.Tokenizer {
	tok, err := tokenizer.New(
		`^([A-Za-z]+)_(\d{4})(\d{2})(\d{2})_(\d+)\.zip$`,
		`^([A-Za-z]+)_(\d{4})(\d{2})(\d{2})_(\d+)_(specimen|experiment)\.xml$`,
		func(c string) bool { return c == "ABCD" },
	)
	require.NoError(t, err)
	return tok
}

func TestProcessEntry_KnownCentreSucceeds(t *testing.T) {
	store := newTestStore(t)
	tok := newTokenizer(t)
	src := model.FileSource{ID: 1, CentreID: 1}

	err := processEntry(store, tok, src, model.ActionAdd, filesource.Entry{Name: "ABCD_20140115_1.zip", Size: 1024})
	require.NoError(t, err)

	zf, err := store.GetOrCreateZipFile("ABCD_20140115_1.zip", tokenizer.Tokens{Kind: tokenizer.KindNone}, 0)
	require.NoError(t, err)
	require.NotNil(t, zf.CentreID)

	za, err := store.GetOrCreateZipAction(zf.ID, model.ActionAdd)
	require.NoError(t, err)
	require.Equal(t, model.PhaseZipName, za.Phase)
	require.Equal(t, model.StatusDone, za.Status)
}

func TestProcessEntry_UnmatchedNameFails(t *testing.T) {
	store := newTestStore(t)
	tok := newTokenizer(t)
	src := model.FileSource{ID: 1, CentreID: 1}

	err := processEntry(store, tok, src, model.ActionAdd, filesource.Entry{Name: "not-a-known-pattern.zip", Size: 10})
	require.NoError(t, err)

	zf, err := store.GetOrCreateZipFile("not-a-known-pattern.zip", tokenizer.Tokens{Kind: tokenizer.KindNone}, 0)
	require.NoError(t, err)
	require.Nil(t, zf.CentreID)

	za, err := store.GetOrCreateZipAction(zf.ID, model.ActionAdd)
	require.NoError(t, err)
	require.Equal(t, model.StatusFailed, za.Status)
}

func TestProcessEntry_IdempotentAcrossRepeatedDiscovery(t *testing.T) {
	store := newTestStore(t)
	tok := newTokenizer(t)
	src := model.FileSource{ID: 1, CentreID: 1}

	for i := 0; i < 2; i++ {
		err := processEntry(store, tok, src, model.ActionAdd, filesource.Entry{Name: "ABCD_20140115_2.zip", Size: 1024})
		require.NoError(t, err)
	}

	zf, err := store.GetOrCreateZipFile("ABCD_20140115_2.zip", tokenizer.Tokens{Kind: tokenizer.KindNone}, 0)
	require.NoError(t, err)
	za, err := store.GetOrCreateZipAction(zf.ID, model.ActionAdd)
	require.NoError(t, err)

	fshz, err := store.GetOrCreateFileSourceHasZip(src.ID, za.ID, 0)
	require.NoError(t, err)
	require.NotZero(t, fshz.ID)
}
