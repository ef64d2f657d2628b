package postingest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/phenodcc/crawler/internal/model"
	"github.com/phenodcc/crawler/internal/tracker"
	"github.com/phenodcc/crawler/pkg/systemutil"
)

// runTool invokes binary with args via systemutil.Run, recording a
// SessionTask row with the phase, timing, exit code and a descriptive
// comment. A StreamLog goroutine is started against the same log path
// before the run, tailing the subprocess's output to the console live.
func runTool(ctx context.Context, store *tracker.Store, sessionID int64, logDir string, phase model.Phase, binary string, args []string) (int, error) {
	task, err := store.StartSessionTask(sessionID, phase)
	if err != nil {
		return -1, fmt.Errorf("postingest: start session task: %w", err)
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("session-%d-task-%d-%s.log", sessionID, task.ID, phase))
	go systemutil.StreamLog(logPath)
	exitCode, runErr := systemutil.Run(binary, args, logPath)
	if runErr != nil {
		store.FinishSessionTask(task.ID, -1, fmt.Sprintf("failed to start %s: %v", binary, runErr))
		return -1, runErr
	}

	elapsed := time.Since(task.Started)
	comment := fmt.Sprintf("%s exited %d after %s", binary, exitCode, elapsed.Round(time.Millisecond))
	if err := store.FinishSessionTask(task.ID, exitCode, comment); err != nil {
		return exitCode, fmt.Errorf("postingest: finish session task: %w", err)
	}
	return exitCode, nil
}
