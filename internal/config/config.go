// Package config loads and validates the crawler's properties files and
// command-line flags. Validation mirrors config.LoadConfig: decode,
// then run gopkg.in/go-playground/validator.v9 over the result so a
// missing required field fails fast at startup.
package config

import (
	"fmt"
	"os"
	"strconv"

	validator "gopkg.in/go-playground/validator.v9"
)

// Flags is the decoded command-line surface of §6.
type Flags struct {
	NumDownloaders          int    `validate:"gte=1,lte=10"`
	MaxRetries              int    `validate:"gte=1,lte=5"`
	PoolSize                int    `validate:"gte=1,lte=10"`
	PeriodHours             int    `validate:"gte=0"`
	DataDir                 string `validate:"required"`
	ReportEmail             string
	CrawlerProps            string `validate:"required"`
	SerializerProps         string
	ValidatorProps          string
	ValidationResourceProps string
	ContextBuilderProps     string
}

// DefaultFlags mirrors the defaults named in §6's flag table.
func DefaultFlags() Flags {
	return Flags{
		NumDownloaders: 1,
		MaxRetries:     1,
		PoolSize:       10,
		PeriodHours:    0,
		DataDir:        "backup",
	}
}

// CrawlerProperties is the content of the `-c` properties file: tracker
// connection and pattern configuration the core itself consumes.
type CrawlerProperties struct {
	TrackerDSN              string `validate:"required"`
	ZipPattern              string `validate:"required"`
	XMLPattern              string `validate:"required"`
	LockPath                string
	MonitorRedisURL         string
	SerializerPath          string // path to the serializer tool binary
	IntegrityPath           string // path to the integrity-checker tool binary
	ContextPath             string // path to the context-builder tool binary
	OverviewPath            string // path to the overview-builder shell tool
	OverviewDatabase        string
	SpecimenValidatorPath   string // path to the specimen XML schema validator binary
	ExperimentValidatorPath string // path to the experiment XML schema validator binary
	SMTPAddr                string // host:port for run-report email, e.g. "localhost:25"
}

// LoadCrawlerProperties reads and validates the `-c` properties file.
func LoadCrawlerProperties(path string) (CrawlerProperties, error) {
	props, err := readProperties(path)
	if err != nil {
		return CrawlerProperties{}, err
	}

	cfg := CrawlerProperties{
		TrackerDSN:              props["tracker.dsn"],
		ZipPattern:              props["tokenizer.zip_pattern"],
		XMLPattern:              props["tokenizer.xml_pattern"],
		LockPath:                props["lock.path"],
		MonitorRedisURL:         props["monitor.redis_url"],
		SerializerPath:          props["tool.serializer_path"],
		IntegrityPath:           props["tool.integrity_path"],
		ContextPath:             props["tool.context_path"],
		OverviewPath:            props["tool.overview_path"],
		OverviewDatabase:        props["tool.overview_database"],
		SpecimenValidatorPath:   props["tool.specimen_validator_path"],
		ExperimentValidatorPath: props["tool.experiment_validator_path"],
		SMTPAddr:                props["notify.smtp_addr"],
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return CrawlerProperties{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// ValidateReadableFile accepts an empty path (flag not supplied);
// otherwise it checks the path points at a readable file, not a
// directory, the contract §6 requires of -s -v -x -o when supplied.
func ValidateReadableFile(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s: is a directory, not a file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %s: not readable: %w", path, err)
	}
	f.Close()
	return nil
}

// ValidateFlags runs struct validation over Flags and additionally checks
// that every supplied properties-file flag is readable.
func ValidateFlags(f Flags) error {
	validate := validator.New()
	if err := validate.Struct(f); err != nil {
		return err
	}
	for _, p := range []string{f.CrawlerProps, f.SerializerProps, f.ValidatorProps, f.ValidationResourceProps, f.ContextBuilderProps} {
		if err := ValidateReadableFile(p); err != nil {
			return err
		}
	}
	if f.ReportEmail != "" {
		// The address is not parsed. An empty ReportEmail cannot be told
		// apart from an absent -r flag here, so it is not rejected; it
		// simply means no report is sent.
		_ = f.ReportEmail
	}
	return nil
}

// ParsePositiveInt parses an integer flag value given as a string. It does
// not check the sign itself; range checks are made by ValidateFlags.
func ParsePositiveInt(s string) (int, error) {
	return strconv.Atoi(s)
}
