package volink

// DeviceFinder represents an entity that can discover the machine's audio
// output devices
type DeviceFinder interface {
	Enumerate() ([]Endpoint, error)

	Release() error
}
