// Package filesource is the abstract remote endpoint capability: list a
// directory, open a stream. Concrete drivers speak ftp, sftp, or (left
// unimplemented, since no directory-listing convention exists for it)
// http.
package filesource

import (
	"errors"
	"fmt"
	"io"

	"github.com/phenodcc/crawler/internal/model"
)

// Entry is one remote directory listing row.
type Entry struct {
	Name string
	Size int64
}

// Driver is one live connection to a FileSource. Discovery and download
// workers each dial their own Driver and never share it across workers.
type Driver interface {
	// List returns the *.zip entries directly under dir.
	List(dir string) ([]Entry, error)
	// Open streams the file at path along with its declared size.
	Open(path string) (io.ReadCloser, int64, error)
	// Close releases the underlying connection.
	Close() error
}

// ErrUnsupportedProtocol is returned by Dial for a FileSource whose
// protocol has no driver, so callers can record it as a per-source error
// rather than treat it as fatal.
var ErrUnsupportedProtocol = errors.New("filesource: unsupported protocol")

// Dial opens a Driver for src's protocol, with a 5-minute connect
// timeout on first use.
func Dial(src model.FileSource) (Driver, error) {
	switch src.Protocol {
	case model.ProtocolFTP:
		return dialFTP(src)
	case model.ProtocolSFTP:
		return dialSFTP(src)
	case model.ProtocolHTTP:
		return nil, fmt.Errorf("%w: no http driver is implemented", ErrUnsupportedProtocol)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, src.Protocol)
	}
}
