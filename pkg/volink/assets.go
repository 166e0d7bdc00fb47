package volink

import (
	_ "embed"
)

// beeep wants an on-disk path rather than raw bytes, so notifications
// reference the copy shipped alongside the executable in release layouts
const notificationIconPath = "assets/logo.png"

// tray icons for either link state
var (
	//go:embed assets/linked.png
	iconLinkedData []byte

	//go:embed assets/unlinked.png
	iconUnlinkedData []byte
)
