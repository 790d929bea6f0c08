package prd

import (
	"fmt"
	"os"
	"time"

	"github.com/twiced-technology-gmbh/ralphy/internal/config"
	"github.com/twiced-technology-gmbh/ralphy/internal/filelock"
)

const progressTimeFormat = "2006-01-02 15:04"

// appendProgress records a task outcome in .ralphy/progress.txt. The log
// is opt-in: nothing is written unless the file already exists. Writes are
// best-effort; failures are swallowed. The file lock keeps a parallel
// group worker and the main loop from interleaving partial lines.
func appendProgress(dir string, ok bool, taskTitle string) {
	path := config.ProgressPath(dir)
	if _, err := os.Stat(path); err != nil {
		return
	}

	unlock, err := filelock.Lock(path + ".lock")
	if err != nil {
		return
	}
	defer func() { _ = unlock() }()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	defer f.Close()

	mark := "✓"
	if !ok {
		mark = "✗"
	}
	fmt.Fprintf(f, "- [%s] %s - %s\n", mark, time.Now().Format(progressTimeFormat), taskTitle)
}
