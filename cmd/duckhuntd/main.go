// duckhuntd is the keystroke-injection defense daemon.
//
//	duckhuntd run       Run the daemon in the foreground
//	duckhuntd status    Show daemon status
//	duckhuntd stop      Stop a running daemon
//	duckhuntd version   Print the version
//
// Detection parameters and runtime control live on the control socket;
// use duckhuntctl to talk to a running daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/qb20nh/duckhunt/internal/config"
	"github.com/qb20nh/duckhunt/internal/daemon"
	"github.com/qb20nh/duckhunt/internal/ipc"
)

const version = "1.0.0"

// Exit codes: 1 generic failure, 2 another instance is running,
// 3 keyboard hook could not be installed.
const (
	exitFailure     = 1
	exitAlreadyRuns = 2
	exitHookInstall = 3
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitFailure)
	}

	cmd := os.Args[1]

	switch cmd {
	case "run":
		cmdRun(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "stop":
		cmdStop(os.Args[2:])
	case "version":
		fmt.Printf("duckhuntd %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(exitFailure)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `duckhuntd - Keystroke injection defense daemon

Usage: duckhuntd <command> [options]

Commands:
  run       Run the daemon in the foreground
  status    Show daemon status
  stop      Stop a running daemon
  version   Print the version
  help      Show this help message

Options for run/status/stop:
  -config <path>  Path to config file (default: platform config dir)

duckhuntd watches keystroke timing only. It never records which keys
are pressed.`)
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	err := daemon.Run(context.Background(), daemon.Options{
		Version:    version,
		ConfigPath: *configPath,
	})
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "duckhuntd: %v\n", err)
	switch {
	case errors.Is(err, daemon.ErrAlreadyRunning):
		os.Exit(exitAlreadyRuns)
	case errors.Is(err, daemon.ErrHookInstall):
		os.Exit(exitHookInstall)
	default:
		os.Exit(exitFailure)
	}
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	handle, cfg := handleFor(*configPath)

	if !handle.IsRunning() {
		fmt.Println("duckhuntd is not running")
		return
	}

	pid, _ := handle.ReadPID()
	fmt.Printf("duckhuntd is running (pid %d)\n", pid)

	if state, err := handle.ReadState(); err == nil {
		fmt.Printf("  version:  %s\n", state.Version)
		fmt.Printf("  started:  %s\n", state.StartedAt.Format(time.RFC3339))
		fmt.Printf("  uptime:   %s\n", time.Since(state.StartedAt).Round(time.Second))
	}

	socketPath := cfg.IPC.SocketPath
	if socketPath == "" {
		socketPath = handle.SocketPath()
	}
	if ipc.IsSocketListening(socketPath) {
		fmt.Printf("  control:  listening on %s\n", socketPath)
	} else {
		fmt.Printf("  control:  not reachable at %s\n", socketPath)
	}
	fmt.Println("\nUse duckhuntctl status for detection statistics.")
}

func cmdStop(args []string) {
	fs := flag.NewFlagSet("stop", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	handle, _ := handleFor(*configPath)

	if !handle.IsRunning() {
		fmt.Println("duckhuntd is not running")
		return
	}

	if err := handle.SignalStop(); err != nil {
		fmt.Fprintf(os.Stderr, "stop: %v\n", err)
		os.Exit(exitFailure)
	}

	if err := handle.WaitForStop(10 * time.Second); err != nil {
		fmt.Fprintf(os.Stderr, "stop: %v\n", err)
		os.Exit(exitFailure)
	}
	fmt.Println("duckhuntd stopped")
}

// handleFor resolves the daemon data directory from the config file.
func handleFor(configPath string) (*daemon.Handle, *config.Config) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(exitFailure)
	}

	dataDir := cfg.Daemon.DataDir
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}
	return daemon.NewHandle(dataDir), cfg
}
