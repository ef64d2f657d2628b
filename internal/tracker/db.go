package tracker

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// backoffSchedule mirrors the connection retry policy: initial wait 5
// minutes, multiplier x5, bounded to 5 total connection attempts
// (1 initial + 4 retries); exhausting retries is fatal.
var backoffSchedule = []time.Duration{
	5 * time.Minute,
	25 * time.Minute,
	125 * time.Minute,
	625 * time.Minute,
}

// DB wraps a *sql.DB plus the driver name chosen from the DSN scheme, so
// callers that need driver-specific SQL (get-or-create) can branch on it.
type DB struct {
	*sql.DB
	Driver string
}

// splitDSN recognises the "sqlite://" and "mysql://" schemes described in
// SPEC_FULL.md; a bare path with no scheme defaults to sqlite, matching
// the production default.
func splitDSN(dsn string) (driver, rawDSN string) {
	switch {
	case strings.HasPrefix(dsn, "mysql://"):
		return "mysql", strings.TrimPrefix(dsn, "mysql://")
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://")
	default:
		return "sqlite", dsn
	}
}

// Open connects to the tracker database, retrying with the back-off
// schedule above. sleep is injected so tests don't actually wait; pass
// time.Sleep in production.
func Open(dsn string, sleep func(time.Duration)) (*DB, error) {
	driver, rawDSN := splitDSN(dsn)

	if driver == "sqlite" {
		rawDSN = fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", rawDSN)
	}

	var sqlDB *sql.DB
	var err error
	attempts := 0
	for {
		sqlDB, err = sql.Open(driver, rawDSN)
		if err == nil {
			err = sqlDB.Ping()
		}
		if err == nil {
			break
		}
		if attempts >= len(backoffSchedule) {
			return nil, fmt.Errorf("tracker: exhausted %d connection attempts: %w", len(backoffSchedule)+1, err)
		}
		wait := backoffSchedule[attempts]
		attempts++
		if sleep != nil {
			sleep(wait)
		}
	}

	if driver == "sqlite" {
		// sqlite allows only one writer; serializing through a single
		// connection makes every tracker transaction below trivially
		// race-free in-process, the same choice made for
		// its own job store.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}

	return &DB{DB: sqlDB, Driver: driver}, nil
}
