package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProps(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "crawler.properties")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadCrawlerProperties_OK(t *testing.T) {
	path := writeProps(t, `
# comment
tracker.dsn=sqlite:///tmp/tracker.db
tokenizer.zip_pattern=^([A-Z]+)_(\d{4})(\d{2})(\d{2})_(\d+)\.zip$
tokenizer.xml_pattern=^([A-Z]+)_(\d{4})(\d{2})(\d{2})_(\d+)_(specimen|experiment)\.xml$
lock.path=/tmp/phenodcc.lock
`)
	cfg, err := LoadCrawlerProperties(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite:///tmp/tracker.db", cfg.TrackerDSN)
	assert.Equal(t, "/tmp/phenodcc.lock", cfg.LockPath)
}

func TestLoadCrawlerProperties_MissingRequired(t *testing.T) {
	path := writeProps(t, `lock.path=/tmp/phenodcc.lock`)
	_, err := LoadCrawlerProperties(path)
	assert.Error(t, err)
}

func TestValidateFlags_Bounds(t *testing.T) {
	f := DefaultFlags()
	f.CrawlerProps = writeProps(t, "tracker.dsn=x\ntokenizer.zip_pattern=x\ntokenizer.xml_pattern=x\n")
	f.NumDownloaders = 11
	err := ValidateFlags(f)
	assert.Error(t, err)
}

func TestValidateFlags_OK(t *testing.T) {
	f := DefaultFlags()
	f.CrawlerProps = writeProps(t, "tracker.dsn=x\ntokenizer.zip_pattern=x\ntokenizer.xml_pattern=x\n")
	err := ValidateFlags(f)
	require.NoError(t, err)
}

func TestValidateReadableFile_Empty(t *testing.T) {
	assert.NoError(t, ValidateReadableFile(""))
}

func TestValidateReadableFile_Missing(t *testing.T) {
	assert.Error(t, ValidateReadableFile("/does/not/exist"))
}
