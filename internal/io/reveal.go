package ioutils

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// ShowPathInFileManager opens the platform file manager at the given
// path. The path must exist; launching the manager itself is fire-and-
// forget, so a manager that opens and then fails is not detected.
//
// Example:
//
//	err := ShowPathInFileManager("/manga/Some Comic/Chapter 1")
func ShowPathInFileManager(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("show path: %w", err)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}
