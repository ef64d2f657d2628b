package tracker

import (
	"database/sql"
	"errors"
	"time"

	"github.com/phenodcc/crawler/internal/model"
	"github.com/phenodcc/crawler/internal/rating"
	"github.com/phenodcc/crawler/internal/tokenizer"
)

// ErrNotFound is returned by lookups that find no row, in place of the
// exception-driven "row missing" control flow the original system used.
var ErrNotFound = errors.New("tracker: not found")

// Store is the C1 tracker store: every operation below acquires the
// shared *DB, performs one short transaction, and returns.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store { return &Store{db: db} }

// KnownCentre reports whether shortName names an active Centre row. It is
// handed to tokenizer.New as the knownCentre predicate.
func (s *Store) KnownCentre(shortName string) bool {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM centre WHERE short_name = ? AND active = 1`, shortName).Scan(&id)
	return err == nil
}

// ListActiveSources returns every available FileSource row (resource_state
// 'available') for centres still active.
func (s *Store) ListActiveSources() ([]model.FileSource, error) {
	rows, err := s.db.Query(`
		SELECT fs.id, fs.centre_id, fs.hostname, fs.protocol, fs.base_path,
		       COALESCE(fs.username, ''), COALESCE(fs.password, ''), COALESCE(fs.identity_file, ''), fs.resource_state
		FROM file_source fs
		JOIN centre c ON c.id = fs.centre_id
		WHERE c.active = 1 AND fs.resource_state = 'available'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FileSource
	for rows.Next() {
		var fs model.FileSource
		if err := rows.Scan(&fs.ID, &fs.CentreID, &fs.Hostname, &fs.Protocol, &fs.BasePath,
			&fs.Username, &fs.Password, &fs.IdentityFile, &fs.ResourceState); err != nil {
			return nil, err
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}

// GetOrCreateZipFile is idempotent under concurrent discoverers: it
// selects first, and only inserts when absent, all inside one
// transaction so concurrent callers converge on one row id.
func (s *Store) GetOrCreateZipFile(filename string, tok tokenizer.Tokens, sizeBytes int64) (model.ZipFile, error) {
	var zf model.ZipFile
	err := s.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT id, filename, centre_id, release_date, increment, size_bytes FROM zip_file WHERE filename = ?`, filename)
		if err := scanZipFile(row, &zf); err == nil {
			return nil
		} else if err != sql.ErrNoRows {
			return err
		}

		var centreID any
		var release any
		var increment any
		if tok.Kind == tokenizer.KindZip {
			cid, err := lookupCentreID(tx, tok.Centre)
			if err == nil {
				centreID = cid
			}
			release = time.Date(tok.Year, time.Month(tok.Month), tok.Day, 0, 0, 0, 0, time.UTC)
			increment = tok.Increment
		}

		res, err := tx.Exec(`INSERT INTO zip_file (filename, centre_id, release_date, increment, size_bytes) VALUES (?, ?, ?, ?, ?)`,
			filename, centreID, release, increment, sizeBytes)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		row = tx.QueryRow(`SELECT id, filename, centre_id, release_date, increment, size_bytes FROM zip_file WHERE id = ?`, id)
		return scanZipFile(row, &zf)
	})
	return zf, err
}

func lookupCentreID(tx *sql.Tx, shortName string) (int64, error) {
	var id int64
	err := tx.QueryRow(`SELECT id FROM centre WHERE short_name = ?`, shortName).Scan(&id)
	return id, err
}

func scanZipFile(row *sql.Row, zf *model.ZipFile) error {
	var centreID sql.NullInt64
	var release sql.NullTime
	var increment sql.NullInt64
	if err := row.Scan(&zf.ID, &zf.Filename, &centreID, &release, &increment, &zf.SizeBytes); err != nil {
		return err
	}
	if centreID.Valid {
		v := centreID.Int64
		zf.CentreID = &v
	}
	if release.Valid {
		t := release.Time
		zf.Release = &t
	}
	if increment.Valid {
		v := int(increment.Int64)
		zf.Increment = &v
	}
	return nil
}

// GetZipFile loads a ZipFile by id, used by the download worker to learn
// the local filename to write under backupDir.
func (s *Store) GetZipFile(id int64) (model.ZipFile, error) {
	var zf model.ZipFile
	row := s.db.QueryRow(`SELECT id, filename, centre_id, release_date, increment, size_bytes FROM zip_file WHERE id = ?`, id)
	err := scanZipFile(row, &zf)
	if err == sql.ErrNoRows {
		return zf, ErrNotFound
	}
	return zf, err
}

// GetFileSource loads a FileSource by id, used by the download worker to
// learn the hostname/protocol/credentials to dial.
func (s *Store) GetFileSource(id int64) (model.FileSource, error) {
	var fs model.FileSource
	row := s.db.QueryRow(`
		SELECT id, centre_id, hostname, protocol, base_path,
		       COALESCE(username, ''), COALESCE(password, ''), COALESCE(identity_file, ''), resource_state
		FROM file_source WHERE id = ?`, id)
	err := row.Scan(&fs.ID, &fs.CentreID, &fs.Hostname, &fs.Protocol, &fs.BasePath,
		&fs.Username, &fs.Password, &fs.IdentityFile, &fs.ResourceState)
	if err == sql.ErrNoRows {
		return fs, ErrNotFound
	}
	return fs, err
}

// GetOrCreateZipAction is idempotent by (zip_id, todo). A freshly created
// action starts at (zip_name, running); callers then set its outcome
// once the tokenizer result for the owning ZipFile is known.
func (s *Store) GetOrCreateZipAction(zipID int64, todo model.ProcessingType) (model.ZipAction, error) {
	var za model.ZipAction
	err := s.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT id, zip_id, todo, phase_id, status_id FROM zip_action WHERE zip_id = ? AND todo = ?`, zipID, todo)
		if err := scanZipAction(row, &za); err == nil {
			return nil
		} else if err != sql.ErrNoRows {
			return err
		}

		res, err := tx.Exec(`INSERT INTO zip_action (zip_id, todo, phase_id, status_id) VALUES (?, ?, ?, ?)`,
			zipID, todo, model.PhaseZipName, model.StatusRunning)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		row = tx.QueryRow(`SELECT id, zip_id, todo, phase_id, status_id FROM zip_action WHERE id = ?`, id)
		return scanZipAction(row, &za)
	})
	return za, err
}

func scanZipAction(row *sql.Row, za *model.ZipAction) error {
	return row.Scan(&za.ID, &za.ZipID, &za.Todo, &za.Phase, &za.Status)
}

// GetZipAction loads a ZipAction by id.
func (s *Store) GetZipAction(id int64) (model.ZipAction, error) {
	var za model.ZipAction
	row := s.db.QueryRow(`SELECT id, zip_id, todo, phase_id, status_id FROM zip_action WHERE id = ?`, id)
	err := scanZipAction(row, &za)
	if err == sql.ErrNoRows {
		return za, ErrNotFound
	}
	return za, err
}

// EscalateZipAction applies the §4.1 matrix to a ZipAction's stored pair
// and the proposed pair, writing back only if it changed.
func (s *Store) EscalateZipAction(id int64, proposed model.PhaseStatus) (model.PhaseStatus, error) {
	var result model.PhaseStatus
	err := s.withTx(func(tx *sql.Tx) error {
		var cur model.PhaseStatus
		if err := tx.QueryRow(`SELECT phase_id, status_id FROM zip_action WHERE id = ?`, id).Scan(&cur.Phase, &cur.Status); err != nil {
			return err
		}
		result = Escalate(cur, proposed)
		if result == cur {
			return nil
		}
		_, err := tx.Exec(`UPDATE zip_action SET phase_id = ?, status_id = ? WHERE id = ?`, result.Phase, result.Status, id)
		return err
	})
	return result, err
}

// TakeDownloadJob is the linearizable claim protocol of §4.1: it verifies
// the action's current (phase,status) equals (zip_name, done) and, if so,
// atomically advances it to (download, running).
func (s *Store) TakeDownloadJob(id int64) (bool, error) {
	claimed := false
	err := s.withTx(func(tx *sql.Tx) error {
		var phase model.Phase
		var status model.Status
		if err := tx.QueryRow(`SELECT phase_id, status_id FROM zip_action WHERE id = ?`, id).Scan(&phase, &status); err != nil {
			return err
		}
		if phase != model.PhaseZipName || status != model.StatusDone {
			return nil
		}
		_, err := tx.Exec(`UPDATE zip_action SET phase_id = ?, status_id = ? WHERE id = ? AND phase_id = ? AND status_id = ?`,
			model.PhaseDownload, model.StatusRunning, id, model.PhaseZipName, model.StatusDone)
		if err != nil {
			return err
		}
		claimed = true
		return nil
	})
	return claimed, err
}

// ListClaimableZipActions returns every ZipAction currently sitting at
// (zip_name, done), the set download workers poll.
func (s *Store) ListClaimableZipActions() ([]int64, error) {
	rows, err := s.db.Query(`SELECT id FROM zip_action WHERE phase_id = ? AND status_id = ?`, model.PhaseZipName, model.StatusDone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetOrCreateFileSourceHasZip records that sourceID hosts actionID.
func (s *Store) GetOrCreateFileSourceHasZip(sourceID, actionID int64, rate int) (model.FileSourceHasZip, error) {
	var fshz model.FileSourceHasZip
	err := s.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT id, file_source_id, zip_action_id, rating FROM file_source_has_zip WHERE file_source_id = ? AND zip_action_id = ?`, sourceID, actionID)
		if err := row.Scan(&fshz.ID, &fshz.FileSourceID, &fshz.ZipActionID, &fshz.Rating); err == nil {
			return nil
		} else if err != sql.ErrNoRows {
			return err
		}
		res, err := tx.Exec(`INSERT INTO file_source_has_zip (file_source_id, zip_action_id, rating) VALUES (?, ?, ?)`, sourceID, actionID, rate)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		fshz = model.FileSourceHasZip{ID: id, FileSourceID: sourceID, ZipActionID: actionID, Rating: rate}
		return nil
	})
	return fshz, err
}

// Candidate pairs a rating.Candidate with the FileSourceHasZip row id
// that a subsequent CreateZipDownload call needs.
type Candidate struct {
	rating.Candidate
	FshzID int64
}

// ListCandidates returns every candidate hosting actionID, for the
// download worker to sort via internal/rating.
func (s *Store) ListCandidates(actionID int64) ([]Candidate, error) {
	var packageCentre int64
	err := s.db.QueryRow(`
		SELECT COALESCE(zf.centre_id, 0) FROM zip_action za
		JOIN zip_file zf ON zf.id = za.zip_id
		WHERE za.id = ?`, actionID).Scan(&packageCentre)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT fshz.id, fs.id, fs.centre_id
		FROM file_source_has_zip fshz
		JOIN file_source fs ON fs.id = fshz.file_source_id
		WHERE fshz.zip_action_id = ?`, actionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.FshzID, &c.SourceID, &c.SourceCentreID); err != nil {
			return nil, err
		}
		c.PackageCentreID = packageCentre
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateZipDownload opens a new attempt row at (download, running). The
// download worker owns this row directly for the lifetime of its attempt
// and may overwrite its phase/status without going through the matrix
// (SetZipDownloadDirect) — no other worker ever touches this row.
func (s *Store) CreateZipDownload(fshzID int64) (model.ZipDownload, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`INSERT INTO zip_download (file_source_has_zip_id, started, last_received, bytes_received, phase_id, status_id) VALUES (?, ?, ?, 0, ?, ?)`,
		fshzID, now, now, model.PhaseDownload, model.StatusRunning)
	if err != nil {
		return model.ZipDownload{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.ZipDownload{}, err
	}
	return model.ZipDownload{ID: id, FileSourceHasZip: fshzID, Started: now, LastReceived: now, Phase: model.PhaseDownload, Status: model.StatusRunning}, nil
}

// GetZipDownload loads a ZipDownload by id, used by the extractor to
// learn which FileSourceHasZip (and therefore ZipAction) it belongs to.
func (s *Store) GetZipDownload(id int64) (model.ZipDownload, error) {
	var dl model.ZipDownload
	row := s.db.QueryRow(`SELECT id, file_source_has_zip_id, started, last_received, bytes_received, phase_id, status_id FROM zip_download WHERE id = ?`, id)
	err := row.Scan(&dl.ID, &dl.FileSourceHasZip, &dl.Started, &dl.LastReceived, &dl.BytesReceived, &dl.Phase, &dl.Status)
	if err == sql.ErrNoRows {
		return dl, ErrNotFound
	}
	return dl, err
}

// SetZipDownloadDirect overwrites a download attempt's own phase/status.
// Used only by the worker that owns the row for its own retry bookkeeping
// (running -> failed -> running -> done across attempts); it never
// cascades to the owning ZipAction.
func (s *Store) SetZipDownloadDirect(id int64, phase model.Phase, status model.Status) error {
	_, err := s.db.Exec(`UPDATE zip_download SET phase_id = ?, status_id = ? WHERE id = ?`, phase, status, id)
	return err
}

// UpdateDownloadProgress records the running byte count and timestamp;
// it is what internal/progress.Reporter calls into, and a failure here
// must never fail the download, so callers log and swallow the error.
func (s *Store) UpdateDownloadProgress(id int64, bytesSoFar int64, at time.Time) error {
	_, err := s.db.Exec(`UPDATE zip_download SET bytes_received = ?, last_received = ? WHERE id = ?`, bytesSoFar, at, id)
	return err
}

// EscalateZipDownload applies the matrix to a download row, writing it back
// if it changed, and then cascades the resulting pair into the owning
// ZipAction (where the matrix again decides whether it moves). Used
// by the extractor (C8), whose failures must propagate per §4.8.
func (s *Store) EscalateZipDownload(id int64, proposed model.PhaseStatus) (model.PhaseStatus, error) {
	var result model.PhaseStatus
	var actionID int64
	err := s.withTx(func(tx *sql.Tx) error {
		var cur model.PhaseStatus
		var fshzID int64
		if err := tx.QueryRow(`SELECT phase_id, status_id, file_source_has_zip_id FROM zip_download WHERE id = ?`, id).Scan(&cur.Phase, &cur.Status, &fshzID); err != nil {
			return err
		}
		result = Escalate(cur, proposed)
		if result != cur {
			if _, err := tx.Exec(`UPDATE zip_download SET phase_id = ?, status_id = ? WHERE id = ?`, result.Phase, result.Status, id); err != nil {
				return err
			}
		}
		return tx.QueryRow(`SELECT zip_action_id FROM file_source_has_zip WHERE id = ?`, fshzID).Scan(&actionID)
	})
	if err != nil {
		return result, err
	}
	if _, err := s.EscalateZipAction(actionID, result); err != nil {
		return result, err
	}
	return result, nil
}

// GetOrCreateXmlFile is idempotent by (zip_download_id, name).
func (s *Store) GetOrCreateXmlFile(downloadID int64, name string, tok tokenizer.Tokens, sizeBytes int64) (model.XmlFile, error) {
	var xf model.XmlFile
	err := s.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT id, zip_download_id, name, centre_id, created, increment, size_bytes, phase_id, status_id, specimen FROM xml_file WHERE zip_download_id = ? AND name = ?`, downloadID, name)
		if err := scanXmlFile(row, &xf); err == nil {
			return nil
		} else if err != sql.ErrNoRows {
			return err
		}

		var centreID any
		var created any
		var increment any
		specimen := false
		if tok.Kind == tokenizer.KindXML {
			if cid, err := lookupCentreID(tx, tok.Centre); err == nil {
				centreID = cid
			}
			created = time.Date(tok.Year, time.Month(tok.Month), tok.Day, 0, 0, 0, 0, time.UTC)
			increment = tok.Increment
			specimen = tok.Doc == tokenizer.DocKindSpecimen
		}

		res, err := tx.Exec(`INSERT INTO xml_file (zip_download_id, name, centre_id, created, increment, size_bytes, phase_id, status_id, specimen) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			downloadID, name, centreID, created, increment, sizeBytes, model.PhaseXMLName, model.StatusRunning, specimen)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		row = tx.QueryRow(`SELECT id, zip_download_id, name, centre_id, created, increment, size_bytes, phase_id, status_id, specimen FROM xml_file WHERE id = ?`, id)
		return scanXmlFile(row, &xf)
	})
	return xf, err
}

func scanXmlFile(row *sql.Row, xf *model.XmlFile) error {
	var centreID sql.NullInt64
	var created sql.NullTime
	var increment sql.NullInt64
	if err := row.Scan(&xf.ID, &xf.ZipDownload, &xf.Name, &centreID, &created, &increment, &xf.SizeBytes, &xf.Phase, &xf.Status, &xf.Specimen); err != nil {
		return err
	}
	if centreID.Valid {
		v := centreID.Int64
		xf.CentreID = &v
	}
	if created.Valid {
		t := created.Time
		xf.Created = &t
	}
	if increment.Valid {
		v := int(increment.Int64)
		xf.Increment = &v
	}
	return nil
}

// EscalateXmlFile applies the matrix to an XmlFile and cascades into its
// ZipDownload (which itself cascades into the ZipAction).
func (s *Store) EscalateXmlFile(id int64, proposed model.PhaseStatus) (model.PhaseStatus, error) {
	var result model.PhaseStatus
	var downloadID int64
	err := s.withTx(func(tx *sql.Tx) error {
		var cur model.PhaseStatus
		if err := tx.QueryRow(`SELECT phase_id, status_id, zip_download_id FROM xml_file WHERE id = ?`, id).Scan(&cur.Phase, &cur.Status, &downloadID); err != nil {
			return err
		}
		result = Escalate(cur, proposed)
		if result == cur {
			return nil
		}
		_, err := tx.Exec(`UPDATE xml_file SET phase_id = ?, status_id = ? WHERE id = ?`, result.Phase, result.Status, id)
		return err
	})
	if err != nil {
		return result, err
	}
	if _, err := s.EscalateZipDownload(downloadID, result); err != nil {
		return result, err
	}
	return result, nil
}

// GetXmlFile loads an XmlFile by id.
func (s *Store) GetXmlFile(id int64) (model.XmlFile, error) {
	var xf model.XmlFile
	row := s.db.QueryRow(`SELECT id, zip_download_id, name, centre_id, created, increment, size_bytes, phase_id, status_id, specimen FROM xml_file WHERE id = ?`, id)
	err := scanXmlFile(row, &xf)
	if err == sql.ErrNoRows {
		return xf, ErrNotFound
	}
	return xf, err
}

// ListXmlFilesByPhaseStatus returns the documents of one kind (specimen or
// experiment) at (phase, status), by ascending creation time then id.
// Post-ingest gets its specimen-before-experiment order of §4.9 by calling
// it for specimens first and experiments second.
func (s *Store) ListXmlFilesByPhaseStatus(phase model.Phase, status model.Status, specimen bool) ([]model.XmlFile, error) {
	rows, err := s.db.Query(`
		SELECT id, zip_download_id, name, centre_id, created, increment, size_bytes, phase_id, status_id, specimen
		FROM xml_file WHERE phase_id = ? AND status_id = ? AND specimen = ?
		ORDER BY created ASC, id ASC`, phase, status, specimen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.XmlFile
	for rows.Next() {
		var xf model.XmlFile
		var centreID sql.NullInt64
		var created sql.NullTime
		var increment sql.NullInt64
		if err := rows.Scan(&xf.ID, &xf.ZipDownload, &xf.Name, &centreID, &created, &increment, &xf.SizeBytes, &xf.Phase, &xf.Status, &xf.Specimen); err != nil {
			return nil, err
		}
		if centreID.Valid {
			v := centreID.Int64
			xf.CentreID = &v
		}
		if created.Valid {
			t := created.Time
			xf.Created = &t
		}
		if increment.Valid {
			v := int(increment.Int64)
			xf.Increment = &v
		}
		out = append(out, xf)
	}
	return out, rows.Err()
}

// XmlFileArchive resolves the (ZipFile, ZipAction) an XmlFile descends
// from, the join post-ingest needs to rebuild the extracted-contents path
// (<backupDir>/<todo>/<filename>.contents/<name>) without any package
// outside tracker touching SQL directly.
func (s *Store) XmlFileArchive(xmlFileID int64) (model.ZipFile, model.ZipAction, error) {
	var zf model.ZipFile
	var za model.ZipAction
	row := s.db.QueryRow(`
		SELECT zf.id, zf.filename, zf.centre_id, zf.release_date, zf.increment, zf.size_bytes,
		       za.id, za.zip_id, za.todo, za.phase_id, za.status_id
		FROM xml_file xf
		JOIN zip_download zd ON zd.id = xf.zip_download_id
		JOIN file_source_has_zip fshz ON fshz.id = zd.file_source_has_zip_id
		JOIN zip_action za ON za.id = fshz.zip_action_id
		JOIN zip_file zf ON zf.id = za.zip_id
		WHERE xf.id = ?`, xmlFileID)

	var centreID sql.NullInt64
	var release sql.NullTime
	var increment sql.NullInt64
	err := row.Scan(&zf.ID, &zf.Filename, &centreID, &release, &increment, &zf.SizeBytes,
		&za.ID, &za.ZipID, &za.Todo, &za.Phase, &za.Status)
	if err == sql.ErrNoRows {
		return zf, za, ErrNotFound
	}
	if err != nil {
		return zf, za, err
	}
	if centreID.Valid {
		v := centreID.Int64
		zf.CentreID = &v
	}
	if release.Valid {
		t := release.Time
		zf.Release = &t
	}
	if increment.Valid {
		v := int(increment.Int64)
		zf.Increment = &v
	}
	return zf, za, nil
}

// InternException interns an exception short-name, creating it on first
// reference.
func (s *Store) InternException(shortName string) (int64, error) {
	var id int64
	err := s.withTx(func(tx *sql.Tx) error {
		err := tx.QueryRow(`SELECT id FROM an_exception WHERE short_name = ?`, shortName).Scan(&id)
		if err == nil {
			return nil
		}
		if err != sql.ErrNoRows {
			return err
		}
		res, err := tx.Exec(`INSERT INTO an_exception (short_name) VALUES (?)`, shortName)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// AppendZipLog / AppendXmlLog are append-only error annotations.
func (s *Store) AppendZipLog(downloadID int64, exceptionShortName, message string, line, col *int) error {
	excID, err := s.InternException(exceptionShortName)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO zip_log (zip_download_id, exception_id, message, line, col) VALUES (?, ?, ?, ?, ?)`,
		downloadID, excID, message, nullableInt(line), nullableInt(col))
	return err
}

func (s *Store) AppendXmlLog(xmlFileID int64, exceptionShortName, message string, line, col *int) error {
	excID, err := s.InternException(exceptionShortName)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO xml_log (xml_file_id, exception_id, message, line, col) VALUES (?, ?, ?, ?, ?)`,
		xmlFileID, excID, message, nullableInt(line), nullableInt(col))
	return err
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// DB exposes the underlying connection for callers (such as tests) that
// need to run their own statements outside the Store's API.
func (s *Store) DB() *DB { return s.db }
