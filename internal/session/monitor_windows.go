//go:build windows

package session

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	wmWtsSessionChange = 0x02B1
	wmClose            = 0x0010
	wmDestroy          = 0x0002

	wtsSessionLock   = 0x7
	wtsSessionUnlock = 0x8

	// Notify for the session attached to this process only.
	notifyForThisSession = 0

	windowClassName = "DuckhuntSessionMonitor"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	wtsapi32 = windows.NewLazySystemDLL("wtsapi32.dll")

	procRegisterClassExW        = user32.NewProc("RegisterClassExW")
	procCreateWindowExW         = user32.NewProc("CreateWindowExW")
	procDestroyWindow           = user32.NewProc("DestroyWindow")
	procDefWindowProcW          = user32.NewProc("DefWindowProcW")
	procGetMessageW             = user32.NewProc("GetMessageW")
	procPostMessageW            = user32.NewProc("PostMessageW")
	procPostQuitMessage         = user32.NewProc("PostQuitMessage")
	procTranslateMessage        = user32.NewProc("TranslateMessage")
	procDispatchMessageW        = user32.NewProc("DispatchMessageW")
	procRegisterSessionNotify   = wtsapi32.NewProc("WTSRegisterSessionNotification")
	procUnregisterSessionNotify = wtsapi32.NewProc("WTSUnRegisterSessionNotification")
)

type wndClassEx struct {
	Size       uint32
	Style      uint32
	WndProc    uintptr
	ClsExtra   int32
	WndExtra   int32
	Instance   windows.Handle
	Icon       windows.Handle
	Cursor     windows.Handle
	Background windows.Handle
	MenuName   *uint16
	ClassName  *uint16
	IconSm     windows.Handle
}

type msg struct {
	Hwnd    windows.Handle
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// wtsMonitor receives WM_WTSSESSION_CHANGE on a hidden message-only
// window registered with WTSRegisterSessionNotification. The window and
// its message loop live on one locked OS thread.
type wtsMonitor struct {
	base

	mu       sync.Mutex
	hwnd     windows.Handle
	started  bool
	done     chan struct{}
	startErr chan error
}

func newPlatformMonitor() Monitor {
	return &wtsMonitor{base: newBase()}
}

func (m *wtsMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("session monitor already started")
	}

	m.done = make(chan struct{})
	m.startErr = make(chan error, 1)
	go m.windowLoop()

	if err := <-m.startErr; err != nil {
		return err
	}
	m.started = true
	return nil
}

// windowLoop creates the hidden window, registers for session
// notifications, and pumps messages until WM_DESTROY.
func (m *wtsMonitor) windowLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(m.done)

	wndProc := windows.NewCallback(func(hwnd windows.Handle, message uint32, wparam, lparam uintptr) uintptr {
		switch message {
		case wmWtsSessionChange:
			switch wparam {
			case wtsSessionLock:
				m.setState(Locked)
			case wtsSessionUnlock:
				m.setState(Active)
			}
			return 0
		case wmClose:
			procDestroyWindow.Call(uintptr(hwnd))
			return 0
		case wmDestroy:
			procPostQuitMessage.Call(0)
			return 0
		}
		ret, _, _ := procDefWindowProcW.Call(uintptr(hwnd), uintptr(message), wparam, lparam)
		return ret
	})

	className, err := windows.UTF16PtrFromString(windowClassName)
	if err != nil {
		m.startErr <- err
		return
	}

	wc := wndClassEx{
		Size:      uint32(unsafe.Sizeof(wndClassEx{})),
		WndProc:   wndProc,
		ClassName: className,
	}
	if atom, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc))); atom == 0 {
		m.startErr <- fmt.Errorf("register window class: %w", err)
		return
	}

	hwnd, _, err := procCreateWindowExW.Call(
		0,
		uintptr(unsafe.Pointer(className)),
		0,
		0,
		0, 0, 0, 0,
		0, 0, 0, 0,
	)
	if hwnd == 0 {
		m.startErr <- fmt.Errorf("create notification window: %w", err)
		return
	}
	m.hwnd = windows.Handle(hwnd)

	if ok, _, err := procRegisterSessionNotify.Call(hwnd, notifyForThisSession); ok == 0 {
		procDestroyWindow.Call(hwnd)
		m.startErr <- fmt.Errorf("register session notification: %w", err)
		return
	}
	m.startErr <- nil

	var message msg
	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&message)), 0, 0, 0)
		if int32(ret) <= 0 {
			break
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&message)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&message)))
	}

	procUnregisterSessionNotify.Call(hwnd)
}

func (m *wtsMonitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	procPostMessageW.Call(uintptr(m.hwnd), wmClose, 0, 0)
	<-m.done
	m.started = false
	return nil
}
