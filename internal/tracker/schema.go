package tracker

// testSchema creates the tracker's tables against a sqlite database. In
// production the relational schema is assumed pre-created; this
// statement exists only so tests can stand up a throwaway tracker
// against sqlite ":memory:".
const testSchema = `
CREATE TABLE IF NOT EXISTS centre (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	short_name TEXT UNIQUE NOT NULL,
	name TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS file_source (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	centre_id INTEGER NOT NULL REFERENCES centre(id),
	hostname TEXT NOT NULL,
	protocol TEXT NOT NULL,
	base_path TEXT NOT NULL,
	username TEXT,
	password TEXT,
	identity_file TEXT,
	resource_state TEXT NOT NULL DEFAULT 'available'
);

CREATE TABLE IF NOT EXISTS zip_file (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT UNIQUE NOT NULL,
	centre_id INTEGER REFERENCES centre(id),
	release_date DATETIME,
	increment INTEGER,
	size_bytes INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS zip_action (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	zip_id INTEGER NOT NULL REFERENCES zip_file(id),
	todo TEXT NOT NULL,
	phase_id INTEGER NOT NULL,
	status_id INTEGER NOT NULL,
	UNIQUE(zip_id, todo)
);

CREATE TABLE IF NOT EXISTS file_source_has_zip (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_source_id INTEGER NOT NULL REFERENCES file_source(id),
	zip_action_id INTEGER NOT NULL REFERENCES zip_action(id),
	rating INTEGER NOT NULL DEFAULT 0,
	UNIQUE(file_source_id, zip_action_id)
);

CREATE TABLE IF NOT EXISTS zip_download (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_source_has_zip_id INTEGER NOT NULL REFERENCES file_source_has_zip(id),
	started DATETIME NOT NULL,
	last_received DATETIME,
	bytes_received INTEGER NOT NULL DEFAULT 0,
	phase_id INTEGER NOT NULL,
	status_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS xml_file (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	zip_download_id INTEGER NOT NULL REFERENCES zip_download(id),
	name TEXT NOT NULL,
	centre_id INTEGER REFERENCES centre(id),
	created DATETIME,
	increment INTEGER,
	size_bytes INTEGER NOT NULL DEFAULT 0,
	phase_id INTEGER NOT NULL,
	status_id INTEGER NOT NULL,
	specimen BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS an_exception (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	short_name TEXT UNIQUE NOT NULL
);

CREATE TABLE IF NOT EXISTS zip_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	zip_download_id INTEGER NOT NULL REFERENCES zip_download(id),
	exception_id INTEGER NOT NULL REFERENCES an_exception(id),
	message TEXT NOT NULL,
	line INTEGER,
	col INTEGER
);

CREATE TABLE IF NOT EXISTS xml_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	xml_file_id INTEGER NOT NULL REFERENCES xml_file(id),
	exception_id INTEGER NOT NULL REFERENCES an_exception(id),
	message TEXT NOT NULL,
	line INTEGER,
	col INTEGER
);

CREATE TABLE IF NOT EXISTS crawling_session (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT UNIQUE NOT NULL,
	started DATETIME NOT NULL,
	ended DATETIME,
	status_id INTEGER
);

CREATE TABLE IF NOT EXISTS session_task (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id INTEGER NOT NULL REFERENCES crawling_session(id),
	phase_id INTEGER NOT NULL,
	started DATETIME NOT NULL,
	ended DATETIME,
	exit_code INTEGER,
	comment TEXT
);
`

// CreateTestSchema executes testSchema. Only ever call this from tests.
func (db *DB) CreateTestSchema() error {
	_, err := db.Exec(testSchema)
	return err
}
