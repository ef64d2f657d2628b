// Package systemutil runs opaque subprocess tools and reports their exit
// code, tailing combined output to a per-invocation log file.
package systemutil

import (
	"fmt"
	"log"
	"os"
	"os/exec"

	"github.com/hpcloud/tail"
)

// Run executes binary with args, tees combined output to logPath (created
// with parent directories as needed) and returns the process's exit code.
// A non-zero code from the subprocess is not itself an error; err is only
// set when the process could not be started at all.
func Run(binary string, args []string, logPath string) (exitCode int, err error) {
	if logPath != "" {
		if err := os.MkdirAll(dirOf(logPath), os.ModePerm); err != nil {
			return -1, err
		}
		f, ferr := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if ferr != nil {
			return -1, ferr
		}
		fmt.Fprintf(f, "\n##### RUN %s %v\n", binary, args)
		f.Close()
	}

	cmd := exec.Command(binary, args...)
	if logPath != "" {
		f, ferr := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0644)
		if ferr != nil {
			return -1, ferr
		}
		defer f.Close()
		cmd.Stdout = f
		cmd.Stderr = f
	}

	runErr := cmd.Run()
	if cmd.ProcessState == nil {
		return -1, runErr
	}
	return cmd.ProcessState.ExitCode(), nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// StreamLog tails path and prints new lines as they arrive, matching the
// teacher's live console feedback for long-running subprocess tools.
func StreamLog(path string) {
	t, err := tail.TailFile(path, tail.Config{Follow: true})
	if err != nil {
		log.Printf("systemutil: tail %s: %v", path, err)
		return
	}
	for line := range t.Lines {
		fmt.Println(line.Text)
	}
}
