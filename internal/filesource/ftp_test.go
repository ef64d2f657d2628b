package filesource

import "testing"

func TestParsePASV(t *testing.T) {
	host, port, err := parsePASV("227 Entering Passive Mode (192,168,1,5,19,136)")
	if err != nil {
		t.Fatal(err)
	}
	if host != "192.168.1.5" {
		t.Errorf("host = %q", host)
	}
	if want := 19*256 + 136; port != want {
		t.Errorf("port = %d, want %d", port, want)
	}
}

func TestParsePASV_Malformed(t *testing.T) {
	if _, _, err := parsePASV("227 nonsense"); err == nil {
		t.Error("expected error for malformed PASV reply")
	}
}

func TestParseListLine(t *testing.T) {
	e, ok := parseListLine("-rw-r--r-- 1 ftp ftp 10240 Jan 15 12:00 ABCD_20140115_1.zip")
	if !ok {
		t.Fatal("expected a match")
	}
	if e.Name != "ABCD_20140115_1.zip" || e.Size != 10240 {
		t.Errorf("got %+v", e)
	}
}

func TestParseListLine_IgnoresNonZip(t *testing.T) {
	if _, ok := parseListLine("drwxr-xr-x 2 ftp ftp 4096 Jan 15 12:00 add"); ok {
		t.Error("directory entries must not be treated as zip candidates")
	}
	if _, ok := parseListLine("-rw-r--r-- 1 ftp ftp 512 Jan 15 12:00 readme.txt"); ok {
		t.Error("non-zip files must be skipped")
	}
}
