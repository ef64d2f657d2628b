package filesource

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/phenodcc/crawler/internal/model"
)

// connectTimeout is the "new connection with 5-min timeout on first use"
// of §4.7.
const connectTimeout = 5 * time.Minute

// ftpDriver speaks the FTP control protocol over net/textproto, the
// stdlib primitive for line-oriented request/response protocols — no ftp
// client library appears anywhere in the retrieved corpus (see
// DESIGN.md), so the control channel is hand-rolled here rather than
// borrowed from an ecosystem package.
type ftpDriver struct {
	conn *textproto.Conn
	raw  net.Conn
	host string
}

func dialFTP(src model.FileSource) (Driver, error) {
	raw, err := net.DialTimeout("tcp", net.JoinHostPort(src.Hostname, "21"), connectTimeout)
	if err != nil {
		return nil, fmt.Errorf("ftp: dial %s: %w", src.Hostname, err)
	}
	conn := textproto.NewConn(raw)

	if _, _, err := conn.ReadResponse(220); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ftp: banner: %w", err)
	}

	d := &ftpDriver{conn: conn, raw: raw, host: src.Hostname}
	user := src.Username
	if user == "" {
		user = "anonymous"
	}
	if err := d.cmd(331, "USER %s", user); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.cmd(230, "PASS %s", src.Password); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.cmd(200, "TYPE I"); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// cmd sends a command and requires the response start with want; FTP
// servers commonly accept either of two adjacent codes for USER/PASS, so
// callers pass the code that matters and tolerate the textproto "any 2xx"
// success class via ReadCodeLine's own rules.
func (d *ftpDriver) cmd(want int, format string, args ...any) error {
	id, err := d.conn.Cmd(format, args...)
	if err != nil {
		return err
	}
	d.conn.StartResponse(id)
	defer d.conn.EndResponse(id)
	code, msg, err := d.conn.ReadResponse(want)
	if err != nil {
		// Many servers reply 230 to a USER command that needs no password,
		// or 202/230 variants; accept any 2xx as success.
		if code/100 == 2 {
			return nil
		}
		return fmt.Errorf("ftp: %s: %d %s: %w", format, code, msg, err)
	}
	return nil
}

func (d *ftpDriver) pasv() (net.Conn, error) {
	id, err := d.conn.Cmd("PASV")
	if err != nil {
		return nil, err
	}
	d.conn.StartResponse(id)
	code, msg, err := d.conn.ReadResponse(227)
	d.conn.EndResponse(id)
	if err != nil {
		return nil, fmt.Errorf("ftp: PASV: %d %s: %w", code, msg, err)
	}
	host, port, err := parsePASV(msg)
	if err != nil {
		return nil, err
	}
	return net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), connectTimeout)
}

// parsePASV extracts host:port from a "227 Entering Passive Mode
// (h1,h2,h3,h4,p1,p2)" response.
func parsePASV(msg string) (string, int, error) {
	start := strings.IndexByte(msg, '(')
	end := strings.IndexByte(msg, ')')
	if start < 0 || end < 0 || end < start {
		return "", 0, fmt.Errorf("ftp: malformed PASV reply %q", msg)
	}
	parts := strings.Split(msg[start+1:end], ",")
	if len(parts) != 6 {
		return "", 0, fmt.Errorf("ftp: malformed PASV reply %q", msg)
	}
	host := strings.Join(parts[0:4], ".")
	p1, err1 := strconv.Atoi(parts[4])
	p2, err2 := strconv.Atoi(parts[5])
	if err1 != nil || err2 != nil {
		return "", 0, fmt.Errorf("ftp: malformed PASV port in %q", msg)
	}
	return host, p1*256 + p2, nil
}

// List issues LIST over a fresh passive data connection and keeps only
// *.zip entries, per §4.6 step 2.
func (d *ftpDriver) List(dir string) ([]Entry, error) {
	data, err := d.pasv()
	if err != nil {
		return nil, err
	}
	id, err := d.conn.Cmd("LIST %s", dir)
	if err != nil {
		data.Close()
		return nil, err
	}
	d.conn.StartResponse(id)
	if code, msg, err := d.conn.ReadResponse(150); err != nil && code/100 != 1 {
		data.Close()
		d.conn.EndResponse(id)
		return nil, fmt.Errorf("ftp: LIST %s: %d %s: %w", dir, code, msg, err)
	}

	var entries []Entry
	scanner := bufio.NewScanner(data)
	for scanner.Scan() {
		if e, ok := parseListLine(scanner.Text()); ok {
			entries = append(entries, e)
		}
	}
	data.Close()

	if _, _, err := d.conn.ReadResponse(226); err != nil {
		d.conn.EndResponse(id)
		return nil, fmt.Errorf("ftp: LIST %s: transfer close: %w", dir, err)
	}
	d.conn.EndResponse(id)
	return entries, scanner.Err()
}

// parseListLine accepts a unix-style LIST line and returns its filename
// and size when the name ends in ".zip".
func parseListLine(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 9 {
		return Entry{}, false
	}
	name := strings.Join(fields[8:], " ")
	if !strings.HasSuffix(strings.ToLower(name), ".zip") {
		return Entry{}, false
	}
	size, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return Entry{}, false
	}
	return Entry{Name: name, Size: size}, true
}

// Open streams path via RETR over a fresh passive data connection.
func (d *ftpDriver) Open(remotePath string) (io.ReadCloser, int64, error) {
	data, err := d.pasv()
	if err != nil {
		return nil, 0, err
	}
	size, _ := d.size(remotePath)

	id, err := d.conn.Cmd("RETR %s", remotePath)
	if err != nil {
		data.Close()
		return nil, 0, err
	}
	d.conn.StartResponse(id)
	if code, msg, err := d.conn.ReadResponse(150); err != nil && code/100 != 1 {
		data.Close()
		d.conn.EndResponse(id)
		return nil, 0, fmt.Errorf("ftp: RETR %s: %d %s: %w", remotePath, code, msg, err)
	}

	return &ftpStream{data: data, ctrl: d.conn, respID: id}, size, nil
}

func (d *ftpDriver) size(remotePath string) (int64, error) {
	id, err := d.conn.Cmd("SIZE %s", remotePath)
	if err != nil {
		return 0, err
	}
	d.conn.StartResponse(id)
	code, msg, err := d.conn.ReadResponse(213)
	d.conn.EndResponse(id)
	if err != nil || code != 213 {
		return 0, fmt.Errorf("ftp: SIZE %s: %s", remotePath, msg)
	}
	return strconv.ParseInt(strings.TrimSpace(msg), 10, 64)
}

func (d *ftpDriver) Close() error {
	d.conn.Cmd("QUIT")
	return d.conn.Close()
}

// ftpStream closes the data connection and reads the trailing 226 off the
// control channel once the caller is done reading.
type ftpStream struct {
	data   net.Conn
	ctrl   *textproto.Conn
	respID uint
}

func (s *ftpStream) Read(p []byte) (int, error) { return s.data.Read(p) }

func (s *ftpStream) Close() error {
	err := s.data.Close()
	s.ctrl.ReadResponse(226)
	s.ctrl.EndResponse(s.respID)
	return err
}
