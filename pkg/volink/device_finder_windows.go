package volink

import (
	"errors"
	"fmt"

	"github.com/diegosz/go-wca/pkg/wca"
	"github.com/go-ole/go-ole"
	"go.uber.org/zap"
)

type wcaDeviceFinder struct {
	logger        *zap.SugaredLogger
	sessionLogger *zap.SugaredLogger

	mmDeviceEnumerator *wca.IMMDeviceEnumerator

	// endpoints handed out by Enumerate, released together with the finder
	endpoints []*wcaEndpoint
}

func newDeviceFinder(logger *zap.SugaredLogger) (DeviceFinder, error) {
	sf := &wcaDeviceFinder{
		logger:        logger.Named("device_finder"),
		sessionLogger: logger.Named("sessions"),
	}

	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		// E_FALSE means that the call was redundant.
		const eFalse = 1
		oleError := &ole.OleError{}

		if errors.As(err, &oleError) {
			if oleError.Code() == eFalse {
				sf.logger.Warn("CoInitializeEx failed with E_FALSE due to redundant invocation")
			} else {
				sf.logger.Warnw("Failed to call CoInitializeEx",
					"isOleError", true,
					"error", err,
					"oleError", oleError)

				return nil, fmt.Errorf("call CoInitializeEx: %w", err)
			}
		} else {
			sf.logger.Warnw("Failed to call CoInitializeEx",
				"isOleError", false,
				"error", err,
				"oleError", nil)

			return nil, fmt.Errorf("call CoInitializeEx: %w", err)
		}
	}

	if err := wca.CoCreateInstance(
		wca.CLSID_MMDeviceEnumerator,
		0,
		wca.CLSCTX_ALL,
		wca.IID_IMMDeviceEnumerator,
		&sf.mmDeviceEnumerator,
	); err != nil {
		sf.logger.Warnw("Failed to call CoCreateInstance", "error", err)
		return nil, fmt.Errorf("call CoCreateInstance: %w", err)
	}

	sf.logger.Debug("Created WCA device finder instance")
	return sf, nil
}

// Enumerate lists the render endpoints the OS knows about, including
// unplugged ones it still remembers, in whatever order COM reports them
func (sf *wcaDeviceFinder) Enumerate() ([]Endpoint, error) {
	var deviceCollection *wca.IMMDeviceCollection

	if err := sf.mmDeviceEnumerator.EnumAudioEndpoints(
		wca.ERender,
		wca.DEVICE_STATE_ACTIVE|wca.DEVICE_STATE_UNPLUGGED,
		&deviceCollection,
	); err != nil {
		sf.logger.Warnw("Failed to enumerate audio endpoints", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrEnumeration, err)
	}

	var deviceCount uint32

	if err := deviceCollection.GetCount(&deviceCount); err != nil {
		sf.logger.Warnw("Failed to get device count from device collection", "error", err)
		return nil, fmt.Errorf("%w: get device count: %v", ErrEnumeration, err)
	}

	endpoints := make([]Endpoint, 0, deviceCount)

	for deviceIdx := uint32(0); deviceIdx < deviceCount; deviceIdx++ {
		var device *wca.IMMDevice

		if err := deviceCollection.Item(deviceIdx, &device); err != nil {
			sf.logger.Warnw("Failed to get device from device collection",
				"deviceIdx", deviceIdx,
				"error", err)

			return nil, fmt.Errorf("%w: get device %d from device collection: %v", ErrEnumeration, deviceIdx, err)
		}

		var endpointID string
		if err := device.GetId(&endpointID); err != nil {
			sf.logger.Warnw("Failed to get device ID",
				"deviceIdx", deviceIdx,
				"error", err)

			device.Release()
			return nil, fmt.Errorf("%w: get device %d ID: %v", ErrEnumeration, deviceIdx, err)
		}

		endpointName, err := sf.getEndpointName(device)
		if err != nil {
			device.Release()
			return nil, fmt.Errorf("%w: get device %d name: %v", ErrEnumeration, deviceIdx, err)
		}

		endpoint := &wcaEndpoint{
			logger: sf.sessionLogger,
			device: device,
			id:     endpointID,
			name:   endpointName,
		}

		sf.endpoints = append(sf.endpoints, endpoint)
		endpoints = append(endpoints, endpoint)

		sf.logger.Debugw("Enumerated device info",
			"deviceIdx", deviceIdx,
			"deviceFriendlyName", endpointName,
			"deviceID", endpointID)
	}

	return endpoints, nil
}

func (sf *wcaDeviceFinder) Release() error {
	for _, endpoint := range sf.endpoints {
		endpoint.release()
	}
	sf.endpoints = nil

	if sf.mmDeviceEnumerator != nil {
		sf.mmDeviceEnumerator.Release()
	}

	ole.CoUninitialize()

	sf.logger.Debug("Released WCA device finder instance")
	return nil
}

func (sf *wcaDeviceFinder) getEndpointName(device *wca.IMMDevice) (string, error) {
	// get the device's property store
	var propertyStore *wca.IPropertyStore

	if err := device.OpenPropertyStore(wca.STGM_READ, &propertyStore); err != nil {
		sf.logger.Warnw("Failed to open property store for endpoint",
			"error", err)

		return "", fmt.Errorf("open endpoint property store: %w", err)
	}
	defer propertyStore.Release()

	value := &wca.PROPVARIANT{}

	if err := propertyStore.GetValue(&wca.PKEY_Device_FriendlyName, value); err != nil {
		sf.logger.Warnw("Failed to get friendly name for device",
			"error", err)

		return "", fmt.Errorf("get device friendly name: %w", err)
	}

	// device friendly name i.e. "Headphones (Realtek Audio)"
	return value.String(), nil
}

type wcaEndpoint struct {
	logger *zap.SugaredLogger
	device *wca.IMMDevice
	id     string
	name   string
}

func (e *wcaEndpoint) ID() string {
	return e.id
}

func (e *wcaEndpoint) Name() string {
	return e.name
}

func (e *wcaEndpoint) OpenSession() (VolumeSession, error) {
	var endpointVolume *wca.IAudioEndpointVolume

	if err := e.device.Activate(
		wca.IID_IAudioEndpointVolume,
		wca.CLSCTX_ALL,
		nil,
		&endpointVolume,
	); err != nil {
		e.logger.Warnw("Failed to activate device as IAudioEndpointVolume",
			"device", e.name,
			"error", err)

		return nil, fmt.Errorf("activate endpoint volume: %w", err)
	}

	return newWCASession(e.logger, endpointVolume, e.name), nil
}

func (e *wcaEndpoint) release() {
	if e.device != nil {
		e.device.Release()
		e.device = nil
	}
}
