package util

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"
)

// EnsureDirExists creates the given directory path if it doesn't already exist
func EnsureDirExists(path string) error {
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return fmt.Errorf("ensure directory exists (%s): %w", path, err)
	}

	return nil
}

// FileExists checks if the given file exists on the filesystem
func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}

// Linux returns true if we're running on a Linux machine
func Linux() bool {
	return runtime.GOOS == "linux"
}

// SetupCloseHandler returns a channel that receives OS interrupt and
// termination signals
func SetupCloseHandler() chan os.Signal {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	return c
}

// OpenExternal spawns a detached process with the provided command and argument
func OpenExternal(logger *zap.SugaredLogger, cmd string, arg string) error {

	// use cmd.exe start for windows, bash for linux
	command := exec.Command("cmd.exe", "/C", "start", "/b", cmd, arg)
	if Linux() {
		command = exec.Command("/bin/bash", "-c", fmt.Sprintf("%s %s &", cmd, arg))
	}

	if err := command.Run(); err != nil {
		logger.Warnw("Failed to spawn detached process",
			"command", cmd,
			"argument", arg,
			"error", err)

		return fmt.Errorf("spawn detached proc: %w", err)
	}

	return nil
}

// Clamp01 limits a volume scalar to its valid range
func Clamp01(value float32) float32 {
	if value < 0.0 {
		return 0.0
	}

	if value > 1.0 {
		return 1.0
	}

	return value
}
