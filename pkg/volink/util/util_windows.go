package util

import (
	"syscall"

	"github.com/lxn/win"
	"github.com/rodolfoag/gow32"
)

// CreateMutex acquires a global named mutex, erroring if another process
// already holds it
func CreateMutex(name string) error {
	// cannot use w32.CreateMutex as it doesn't return an error
	// relying on OS to release it on program exit
	_, err := gow32.CreateMutex("Global//" + name)
	return err
}

// FatalNotice shows a blocking modal error dialog
func FatalNotice(title string, message string) {
	messagePtr, err := syscall.UTF16PtrFromString(message)
	if err != nil {
		return
	}

	titlePtr, err := syscall.UTF16PtrFromString(title)
	if err != nil {
		return
	}

	win.MessageBox(0, messagePtr, titlePtr, win.MB_OK|win.MB_ICONERROR|win.MB_SETFOREGROUND)
}
