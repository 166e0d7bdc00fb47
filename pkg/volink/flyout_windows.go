package volink

import (
	"fmt"
	"syscall"
	"time"
	"unsafe"

	"github.com/go-ole/go-ole"
	"go.uber.org/zap"
)

var (
	clsidImmersiveShell       = ole.NewGUID("{C2F03A33-21F5-47FA-B4BB-156362A2F239}")
	iidIServiceProvider       = ole.NewGUID("{6D5140C1-7436-11CE-8034-00AA006009FA}")
	iidIAudioFlyoutController = ole.NewGUID("{41F9D2FB-7834-4AB6-8B1B-73E74064B465}")
)

const flyoutCooldown = time.Second

// audioFlyout pops the system volume OSD. Shows are rate limited to one per
// cooldown window, since every volume tap would otherwise re-trigger it
type audioFlyout struct {
	logger    *zap.SugaredLogger
	lastShown time.Time
}

func newAudioFlyout(logger *zap.SugaredLogger) *audioFlyout {
	return &audioFlyout{logger: logger.Named("flyout")}
}

func (af *audioFlyout) maybeShow() {
	now := time.Now()
	if af.lastShown.Add(flyoutCooldown).After(now) {
		return
	}
	af.lastShown = now

	af.logger.Debug("Showing audio flyout for master volume change")

	if err := showAudioFlyout(); err != nil {
		af.logger.Warnw("Cannot display audio flyout", "error", err)
	}
}

type IServiceProvider struct {
	ole.IUnknown
}

type IServiceProviderVtbl struct {
	ole.IUnknownVtbl
	QueryService uintptr
}

func (v *IServiceProvider) VTable() *IServiceProviderVtbl {
	return (*IServiceProviderVtbl)(unsafe.Pointer(v.RawVTable))
}

func (v *IServiceProvider) QueryService(sid, iid *ole.GUID, out unsafe.Pointer) error {
	hr, _, _ := syscall.SyscallN(
		v.VTable().QueryService,
		uintptr(unsafe.Pointer(v)),
		uintptr(unsafe.Pointer(sid)),
		uintptr(unsafe.Pointer(iid)),
		uintptr(out),
	)
	if hr != 0 {
		return ole.NewError(hr)
	}
	return nil
}

type IAudioFlyoutController struct {
	ole.IUnknown
}

type IAudioFlyoutControllerVtbl struct {
	ole.IUnknownVtbl
	ShowFlyout uintptr
}

func (v *IAudioFlyoutController) VTable() *IAudioFlyoutControllerVtbl {
	return (*IAudioFlyoutControllerVtbl)(unsafe.Pointer(v.RawVTable))
}

func (v *IAudioFlyoutController) ShowFlyout(mode, param uint64) error {
	hr, _, _ := syscall.SyscallN(
		v.VTable().ShowFlyout,
		uintptr(unsafe.Pointer(v)),
		uintptr(mode),
		uintptr(param),
	)
	if hr != 0 {
		return ole.NewError(hr)
	}
	return nil
}

func showAudioFlyout() error {
	unk, err := ole.CreateInstance(clsidImmersiveShell, iidIServiceProvider)
	if err != nil {
		return fmt.Errorf("create immersive shell instance: %w", err)
	}
	shell := (*IServiceProvider)(unsafe.Pointer(unk))
	defer shell.Release()

	var audio *IAudioFlyoutController
	if err := shell.QueryService(iidIAudioFlyoutController, iidIAudioFlyoutController, unsafe.Pointer(&audio)); err != nil {
		return fmt.Errorf("query audio flyout controller: %w", err)
	}
	defer audio.Release()

	return audio.ShowFlyout(0, 0)
}
