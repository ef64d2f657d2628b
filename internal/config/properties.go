package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// readProperties parses a Java-style key=value properties file: blank
// lines and lines starting with # or ! are comments, and values are not
// further unescaped. No ecosystem property-file reader appears anywhere
// in the retrieved corpus for this teacher, so this one piece stays on
// the standard library (see DESIGN.md).
func readProperties(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	props := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		idx := strings.IndexAny(line, "=:")
		if idx < 0 {
			return nil, fmt.Errorf("config: %s:%d: missing '=' or ':'", path, lineNo)
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		props[key] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return props, nil
}
