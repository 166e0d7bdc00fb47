package util

import (
	"fmt"
	"os"
	"strconv"

	ps "github.com/mitchellh/go-ps"
)

// CreateMutex approximates a global named mutex with a pidfile, erroring if
// the pid it names still belongs to a live process
func CreateMutex(name string) error {
	lockFile := name + ".lock"
	currentPid := os.Getpid()

	lockContent, err := os.ReadFile(lockFile)
	if err == nil && len(lockContent) > 0 && string(lockContent) != strconv.Itoa(currentPid) {
		lockPid, err := strconv.Atoi(string(lockContent))
		if err == nil {
			process, err := ps.FindProcess(lockPid)
			if err == nil && process != nil {
				return fmt.Errorf("another instance is already running (pid %d)", lockPid)
			}
		}
	}

	f, err := os.OpenFile(lockFile, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0664)
	if err != nil {
		return fmt.Errorf("cannot create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte(strconv.Itoa(currentPid))); err != nil {
		return fmt.Errorf("cannot write lock file: %w", err)
	}

	return nil
}

// FatalNotice prints the message to stderr; graphical error boxes are a
// Windows affair
func FatalNotice(title string, message string) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", title, message)
}
