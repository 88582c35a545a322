//go:build linux

package hook

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/qb20nh/duckhunt/internal/event"
)

// linuxHook reads key-down events from /dev/input keyboard devices.
type linuxHook struct {
	mu      sync.Mutex
	sink    Sink
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func newPlatformHook(sink Sink) Hook {
	return &linuxHook{sink: sink}
}

// keyboardDevice is one discovered input device.
type keyboardDevice struct {
	path      string
	synthetic bool // uinput/virtual device: events are software-generated
}

// Available checks whether at least one keyboard device is readable.
func (l *linuxHook) Available() (bool, string) {
	devices, err := findKeyboardDevices()
	if err != nil {
		return false, fmt.Sprintf("cannot enumerate input devices: %v", err)
	}
	if len(devices) == 0 {
		return false, "no keyboard devices found"
	}
	for _, dev := range devices {
		f, err := os.OpenFile(dev.path, os.O_RDONLY, 0)
		if err == nil {
			f.Close()
			return true, fmt.Sprintf("found keyboard device: %s", dev.path)
		}
	}
	return false, "cannot read keyboard devices (need to be in 'input' group or run as root)"
}

// findKeyboardDevices parses /proc/bus/input/devices for key-capable
// handlers. Devices whose sysfs node lives under devices/virtual are
// uinput-backed and marked synthetic.
func findKeyboardDevices() ([]keyboardDevice, error) {
	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var devices []keyboardDevice
	scanner := bufio.NewScanner(f)
	var currentHandler string
	var isKeyboard, isVirtual bool

	flush := func() {
		if isKeyboard && currentHandler != "" {
			devices = append(devices, keyboardDevice{path: currentHandler, synthetic: isVirtual})
		}
		currentHandler = ""
		isKeyboard = false
		isVirtual = false
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "S: Sysfs="):
			if strings.Contains(line, "/devices/virtual/") {
				isVirtual = true
			}
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(line) {
				if strings.HasPrefix(part, "event") {
					currentHandler = "/dev/input/" + part
				}
			}
		case strings.HasPrefix(line, "B: KEY="):
			// Key capability bitmap present and non-trivial.
			if len(line) > 10 {
				isKeyboard = true
			}
		case line == "":
			flush()
		}
	}
	flush()

	// by-id symlinks catch hotplugged keyboards the scan may have missed.
	matches, _ := filepath.Glob("/dev/input/by-id/*-kbd")
	for _, m := range matches {
		resolved, err := filepath.EvalSymlinks(m)
		if err != nil {
			continue
		}
		seen := false
		for _, d := range devices {
			if d.path == resolved {
				seen = true
				break
			}
		}
		if !seen {
			devices = append(devices, keyboardDevice{path: resolved})
		}
	}

	return devices, scanner.Err()
}

// Start opens every readable keyboard device and spawns a reader per
// device.
func (l *linuxHook) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return ErrAlreadyRunning
	}

	devices, err := findKeyboardDevices()
	if err != nil {
		return fmt.Errorf("enumerate keyboards: %w", err)
	}
	if len(devices) == 0 {
		return ErrNotAvailable
	}

	var files []*os.File
	var opened []keyboardDevice
	for _, dev := range devices {
		f, err := os.OpenFile(dev.path, os.O_RDONLY, 0)
		if err != nil {
			continue
		}
		files = append(files, f)
		opened = append(opened, dev)
	}
	if len(files) == 0 {
		return ErrPermissionDenied
	}

	readCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true

	for i, f := range files {
		l.wg.Add(1)
		go l.readLoop(readCtx, f, opened[i].synthetic)
	}
	return nil
}

// inputEvent matches the Linux input_event struct on 64-bit platforms.
const (
	inputEventSize = 24
	evKey          = 1
	keyPress       = 1
)

// readLoop reads raw events from one device and forwards key-downs.
func (l *linuxHook) readLoop(ctx context.Context, f *os.File, synthetic bool) {
	defer l.wg.Done()
	defer f.Close()

	// Close the fd when the context ends so the blocking Read returns.
	go func() {
		<-ctx.Done()
		f.Close()
	}()

	buf := make([]byte, inputEventSize)
	for {
		n, err := f.Read(buf)
		if err != nil {
			return
		}
		if n < inputEventSize {
			continue
		}

		evType := binary.LittleEndian.Uint16(buf[16:18])
		code := binary.LittleEndian.Uint16(buf[18:20])
		value := int32(binary.LittleEndian.Uint32(buf[20:24]))

		// Key-down only; releases and auto-repeat carry no new timing
		// signal for injection detection.
		if evType == evKey && value == keyPress {
			l.sink(event.KeyEvent{
				Timestamp: time.Now(),
				KeyCode:   code,
				Synthetic: synthetic,
			})
		}
	}
}

// Stop tears down all device readers.
func (l *linuxHook) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = false
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
	return nil
}
