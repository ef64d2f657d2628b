package filesource

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/phenodcc/crawler/internal/model"
)

// sshDriver is deliberately simplified against §1's framing of file-source
// transport as an opaque capability: rather than hand-roll the binary
// SFTP v3 subsystem (no sftp client package exists anywhere in the
// retrieved corpus), it runs `ls -l` / `cat` over an SSH exec channel,
// using golang.org/x/crypto/ssh — a dependency already pulled in
// in transitively through its go-git ssh transport, promoted here to a
// direct import.
type sshDriver struct {
	client *ssh.Client
}

func dialSFTP(src model.FileSource) (Driver, error) {
	auth, err := sftpAuth(src)
	if err != nil {
		return nil, err
	}
	cfg := &ssh.ClientConfig{
		User:            orDefault(src.Username, "phenodcc"),
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}
	client, err := ssh.Dial("tcp", net.JoinHostPort(src.Hostname, "22"), cfg)
	if err != nil {
		return nil, fmt.Errorf("sftp: dial %s: %w", src.Hostname, err)
	}
	return &sshDriver{client: client}, nil
}

// sftpAuth prefers password auth; when the password is empty it falls
// back to the local agent's identity (§4.6 step 1: "user+pass or, when
// pass is empty, public-key from the local agent identity file").
func sftpAuth(src model.FileSource) ([]ssh.AuthMethod, error) {
	if src.Password != "" {
		return []ssh.AuthMethod{ssh.Password(src.Password)}, nil
	}
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, fmt.Errorf("sftp: no password and no SSH_AUTH_SOCK for identity %s", src.IdentityFile)
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("sftp: dial ssh-agent: %w", err)
	}
	ag := agent.NewClient(conn)
	return []ssh.AuthMethod{ssh.PublicKeysCallback(ag.Signers)}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (d *sshDriver) run(command string) (string, error) {
	session, err := d.client.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()
	out, err := session.CombinedOutput(command)
	return string(out), err
}

// List runs `ls -l` on dir and keeps *.zip entries, tolerating the
// directory not existing yet (a centre that has never shipped an
// add/edit/delete batch) by returning an empty list.
func (d *sshDriver) List(dir string) ([]Entry, error) {
	out, err := d.run(fmt.Sprintf("ls -l %s 2>/dev/null", shellQuote(dir)))
	if err != nil {
		return nil, nil
	}
	var entries []Entry
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		if e, ok := parseListLine(scanner.Text()); ok {
			entries = append(entries, e)
		}
	}
	return entries, scanner.Err()
}

// Open runs `cat` on path over a session pipe so the caller can stream
// the archive without buffering it in memory first.
func (d *sshDriver) Open(remotePath string) (io.ReadCloser, int64, error) {
	session, err := d.client.NewSession()
	if err != nil {
		return nil, 0, err
	}
	size, _ := d.sizeOf(remotePath)

	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, 0, err
	}
	if err := session.Start(fmt.Sprintf("cat %s", shellQuote(remotePath))); err != nil {
		session.Close()
		return nil, 0, err
	}
	return &sshStream{stdout: stdout, session: session}, size, nil
}

func (d *sshDriver) sizeOf(remotePath string) (int64, error) {
	out, err := d.run(fmt.Sprintf("stat -c %%s %s", shellQuote(remotePath)))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(out), 10, 64)
}

func (d *sshDriver) Close() error { return d.client.Close() }

type sshStream struct {
	stdout  io.Reader
	session *ssh.Session
}

func (s *sshStream) Read(p []byte) (int, error) { return s.stdout.Read(p) }

func (s *sshStream) Close() error {
	s.session.Wait()
	return s.session.Close()
}

// shellQuote wraps path in single quotes for the remote shell, escaping
// any single quote it contains.
func shellQuote(p string) string {
	return "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
}
