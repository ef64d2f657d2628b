package download

import (
	"context"
	"io"
	"os"
	"path/filepath"
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
	_, err = db.Exec(`INSERT INTO file_source (id, centre_id, hostname, protocol, base_path, resource_state) VALUES (1, 1, 'ftp.example.org', 'ftp', '/add/', 'available')`)
	require.NoError(t, err)
	return tracker.NewStore(db)
}

// stubDriver is a minimal filesource.Driver double for exercising the
// download worker without any real network transport.
type stubDriver struct {
	data    []byte
	openErr error
	closed  bool
}

func (d *stubDriver) List(dir string) ([]filesource.Entry, error) { return nil, nil }

func (d *stubDriver) Open(path string) (io.ReadCloser, int64, error) {
	if d.openErr != nil {
		return nil, 0, d.openErr
	}
	return io.NopCloser(newReader(d.data)), int64(len(d.data)), nil
}

func (d *stubDriver) Close() error { d.closed = true; return nil }

func newReader(b []byte) io.Reader { return &byteReader{data: b} }

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func TestAttemptOnce_SuccessWritesFileAndSubmits(t *testing.T) {
	store := newTestStore(t)
	zf, err := store.GetOrCreateZipFile("ABCD_20140115_1.zip", tokenizer.Tokens{Kind: tokenizer.KindNone}, 5)
	require.NoError(t, err)
	za, err := store.GetOrCreateZipAction(zf.ID, model.ActionAdd)
	require.NoError(t, err)
	fshz, err := store.GetOrCreateFileSourceHasZip(1, za.ID, 0)
	require.NoError(t, err)
	// runWorker only calls attemptAction after a successful claim, which
	// moves the action to (download, running).
	_, err = store.EscalateZipAction(za.ID, model.PhaseStatus{Phase: model.PhaseZipName, Status: model.StatusDone})
	require.NoError(t, err)
	claimed, err := store.TakeDownloadJob(za.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	dir := t.TempDir()
	var submitted *Extracted
	submit := func(ctx context.Context, ex Extracted) error {
		submitted = &ex
		return nil
	}

	src := model.FileSource{ID: 1, Hostname: "ftp.example.org", BasePath: "/add/", Protocol: model.ProtocolFTP}
	cache := newConnCache()
	cache.byKey["ftp://ftp.example.org"] = &stubDriver{data: []byte("hello")}

	ok, err := attemptOnce(context.Background(), store, cache, za.ID, src, fshz.ID, zf.Filename, model.ActionAdd, dir, submit)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, submitted)
	require.Equal(t, filepath.Join(dir, "add", zf.Filename), submitted.ZipPath)

	written, err := os.ReadFile(filepath.Join(dir, "add", zf.Filename))
	require.NoError(t, err)
	require.Equal(t, "hello", string(written))

	gotAction, err := store.GetZipAction(za.ID)
	require.NoError(t, err)
	require.Equal(t, model.PhaseDownload, gotAction.Phase)
	require.Equal(t, model.StatusDone, gotAction.Status)
}

func TestAttemptOnce_TransportFailureRecordsZipLog(t *testing.T) {
	store := newTestStore(t)
	zf, err := store.GetOrCreateZipFile("ABCD_20140115_2.zip", tokenizer.Tokens{Kind: tokenizer.KindNone}, 5)
	require.NoError(t, err)
	za, err := store.GetOrCreateZipAction(zf.ID, model.ActionAdd)
	require.NoError(t, err)
	fshz, err := store.GetOrCreateFileSourceHasZip(1, za.ID, 0)
	require.NoError(t, err)

	dir := t.TempDir()
	submit := func(ctx context.Context, ex Extracted) error { return nil }

	src := model.FileSource{ID: 1, Hostname: "ftp.example.org", BasePath: "/add/", Protocol: model.ProtocolFTP}
	cache := newConnCache()
	cache.byKey["ftp://ftp.example.org"] = &stubDriver{openErr: io.ErrUnexpectedEOF}

	ok, err := attemptOnce(context.Background(), store, cache, za.ID, src, fshz.ID, zf.Filename, model.ActionAdd, dir, submit)
	require.Error(t, err)
	require.False(t, ok)
}
