package volink

import (
	"fmt"
	"os"
	"strings"

	"github.com/thoas/go-funk"
	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Endpoint is a handle to a single audio output device discovered during
// enumeration. It stays valid until the finder that produced it is released.
type Endpoint interface {

	// ID returns the OS-assigned stable identifier for this device
	ID() string

	// Name returns the human-readable device name, as shown by the OS
	Name() string

	// OpenSession opens a volume control session on this device
	OpenSession() (VolumeSession, error)
}

// Snapshot is one enumeration pass over the system's audio output devices,
// sorted by display name. A device's position in the snapshot is the ordinal
// the link engine works with; ordinals are only meaningful against the
// snapshot that produced them. Devices with identical display names keep no
// particular order between them.
type Snapshot struct {
	logger    *zap.SugaredLogger
	endpoints []Endpoint
}

func newSnapshot(logger *zap.SugaredLogger, endpoints []Endpoint, sortLocale string) (*Snapshot, error) {
	logger = logger.Named("snapshot")

	if len(endpoints) == 0 {
		return nil, ErrNoDevices
	}

	// sort by display name the way the current locale would, so the device
	// list matches what the user sees in the OS sound settings
	collator := collate.New(collationTag(logger, sortLocale), collate.IgnoreCase)
	sorted := make([]Endpoint, len(endpoints))
	copy(sorted, endpoints)

	collator.Sort(byName(sorted))

	snapshot := &Snapshot{
		logger:    logger,
		endpoints: sorted,
	}

	// duplicate names are legal (two identical USB DACs), but worth a mention
	// since the user can only tell them apart by position
	names := snapshot.Names()
	if duplicates := len(names) - len(funk.UniqString(names)); duplicates > 0 {
		logger.Debugw("Device list contains duplicate display names", "duplicates", duplicates)
	}

	logger.Debugw("Created device snapshot", "deviceCount", len(sorted), "names", names)

	return snapshot, nil
}

// Count returns the number of devices in the snapshot. Always at least 1
func (s *Snapshot) Count() int {
	return len(s.endpoints)
}

// At returns the device at the given ordinal
func (s *Snapshot) At(index int) (Endpoint, error) {
	if index < 0 || index >= len(s.endpoints) {
		return nil, fmt.Errorf("%w: %d (snapshot has %d devices)", ErrInvalidIndex, index, len(s.endpoints))
	}

	return s.endpoints[index], nil
}

// IndexOf returns the ordinal of the device carrying the given OS identifier,
// or -1 if no such device is present in the snapshot
func (s *Snapshot) IndexOf(id string) int {
	for index, endpoint := range s.endpoints {
		if endpoint.ID() == id {
			return index
		}
	}

	return -1
}

// Names returns the display names of all devices in snapshot order
func (s *Snapshot) Names() []string {
	names := make([]string, len(s.endpoints))
	for index, endpoint := range s.endpoints {
		names[index] = endpoint.Name()
	}

	return names
}

// byName adapts an endpoint slice to collate.Lister, comparing display names only
type byName []Endpoint

func (b byName) Len() int           { return len(b) }
func (b byName) Swap(i, j int)      { b[i], b[j] = b[j], b[i] }
func (b byName) Bytes(i int) []byte { return []byte(b[i].Name()) }

func collationTag(logger *zap.SugaredLogger, override string) language.Tag {
	if override != "" {
		tag, err := language.Parse(override)
		if err == nil {
			return tag
		}

		logger.Warnw("Ignoring invalid sort_locale value", "value", override, "error", err)
	}

	// fall back to the process environment, like the OS shell would
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		value := os.Getenv(key)
		if value == "" {
			continue
		}

		// strip the charset suffix ("en_US.UTF-8")
		if dot := strings.IndexByte(value, '.'); dot > 0 {
			value = value[:dot]
		}

		if tag, err := language.Parse(value); err == nil {
			return tag
		}
	}

	return language.Und
}
