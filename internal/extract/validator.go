package extract

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/phenodcc/crawler/pkg/systemutil"
)

// issueLine matches one "line:col: message" row a validator tool writes
// per schema violation.
var issueLine = regexp.MustCompile(`^(\d+):(\d+):\s*(.*)$`)

// NewSubprocessValidator returns a Validator that shells out to the
// configured specimen/experiment schema validator binaries, wrapping
// every invocation with systemutil.Run and teeing its output to a log
// file. validatorProps and resourcesProps are the two properties files
// the validator tool itself expects (the original crawler passed them
// as its own "-f" and "-h" arguments, in that order); either may be
// empty if the corresponding flag was not supplied. A validator exiting
// non-zero without any "line:col: message" rows is recorded as a single
// generic Issue.
func NewSubprocessValidator(specimenBinary, experimentBinary, validatorProps, resourcesProps, logDir string) Validator {
	return func(ctx context.Context, xmlPath string, specimen bool) ([]Issue, error) {
		binary := experimentBinary
		if specimen {
			binary = specimenBinary
		}
		if binary == "" {
			return nil, fmt.Errorf("extract: no validator binary configured for specimen=%v", specimen)
		}

		logPath := filepath.Join(logDir, filepath.Base(xmlPath)+".xsd.log")
		exitCode, err := systemutil.Run(binary, []string{xmlPath, validatorProps, resourcesProps}, logPath)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", binary, err)
		}
		if exitCode == 0 {
			return nil, nil
		}

		issues := parseIssues(logPath)
		if len(issues) == 0 {
			issues = []Issue{{Message: fmt.Sprintf("validator exited %d", exitCode)}}
		}
		return issues, nil
	}
}

func parseIssues(logPath string) []Issue {
	f, err := os.Open(logPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	var issues []Issue
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := issueLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		line, errL := strconv.Atoi(m[1])
		col, errC := strconv.Atoi(m[2])
		if errL != nil || errC != nil {
			continue
		}
		issues = append(issues, Issue{Line: &line, Col: &col, Message: m[3]})
	}
	return issues
}
