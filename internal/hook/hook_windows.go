//go:build windows

package hook

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/qb20nh/duckhunt/internal/event"
)

// windowsHook installs a low-level keyboard hook (WH_KEYBOARD_LL).
//
// The hook procedure runs on the thread that installed it, inside its
// message loop, and Windows removes the hook if the procedure stalls, so
// the callback only timestamps the event and hands it to the sink.
// SendInput-style injection sets LLKHF_INJECTED, which becomes the
// event's Synthetic flag.
type windowsHook struct {
	mu       sync.Mutex
	sink     Sink
	hhook    windows.Handle
	threadID uint32
	done     chan struct{}
	startErr chan error
	running  bool
}

func newPlatformHook(sink Sink) Hook {
	return &windowsHook{sink: sink}
}

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookEx = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHook = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx   = user32.NewProc("CallNextHookEx")
	procGetMessage       = user32.NewProc("GetMessageW")
	procPostThreadMessage = user32.NewProc("PostThreadMessageW")
)

const (
	whKeyboardLL  = 13
	wmKeyDown     = 0x0100
	wmSysKeyDown  = 0x0104
	wmQuit        = 0x0012
	llkhfInjected = 0x10
	hcAction      = 0
)

// kbdllHookStruct mirrors KBDLLHOOKSTRUCT.
type kbdllHookStruct struct {
	VkCode    uint32
	ScanCode  uint32
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

// msg mirrors the Win32 MSG struct.
type msg struct {
	HWnd    windows.Handle
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// Available reports whether a low-level hook can be installed.
func (w *windowsHook) Available() (bool, string) {
	if err := procSetWindowsHookEx.Find(); err != nil {
		return false, fmt.Sprintf("user32 unavailable: %v", err)
	}
	return true, "low-level keyboard hook (WH_KEYBOARD_LL)"
}

// Start installs the hook on a dedicated OS thread and runs its message
// loop. Returns once installation has succeeded or failed.
func (w *windowsHook) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyRunning
	}
	w.done = make(chan struct{})
	w.startErr = make(chan error, 1)
	w.mu.Unlock()

	go w.messageLoop()

	select {
	case err := <-w.startErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	// Uninstall asynchronously when the context ends.
	go func() {
		select {
		case <-ctx.Done():
			w.Stop()
		case <-w.done:
		}
	}()
	return nil
}

// messageLoop installs the hook and pumps messages until WM_QUIT.
func (w *windowsHook) messageLoop() {
	// Hook procedures are bound to the installing thread's message loop.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(w.done)

	callback := syscall.NewCallback(func(code int32, wparam, lparam uintptr) uintptr {
		if code == hcAction && (wparam == wmKeyDown || wparam == wmSysKeyDown) {
			kb := (*kbdllHookStruct)(unsafe.Pointer(lparam))
			w.sink(event.KeyEvent{
				Timestamp: time.Now(),
				KeyCode:   uint16(kb.VkCode),
				Synthetic: kb.Flags&llkhfInjected != 0,
			})
		}
		ret, _, _ := procCallNextHookEx.Call(0, uintptr(code), wparam, lparam)
		return ret
	})

	hhook, _, err := procSetWindowsHookEx.Call(whKeyboardLL, callback, 0, 0)
	if hhook == 0 {
		w.startErr <- fmt.Errorf("SetWindowsHookEx: %w", err)
		return
	}

	w.mu.Lock()
	w.hhook = windows.Handle(hhook)
	w.threadID = windows.GetCurrentThreadId()
	w.mu.Unlock()
	w.startErr <- nil

	var m msg
	for {
		ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		// 0 = WM_QUIT, ^0 = error; either way the loop is over.
		if int32(ret) <= 0 {
			break
		}
	}

	procUnhookWindowsHook.Call(uintptr(w.hhook))
}

// Stop posts WM_QUIT to the hook thread and waits for teardown.
func (w *windowsHook) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	threadID := w.threadID
	done := w.done
	w.mu.Unlock()

	if threadID != 0 {
		procPostThreadMessage.Call(uintptr(threadID), wmQuit, 0, 0)
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			return fmt.Errorf("hook thread did not exit")
		}
	}
	return nil
}
