// duckhuntctl talks to a running duckhuntd over its control socket.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/qb20nh/duckhunt/internal/config"
	"github.com/qb20nh/duckhunt/internal/daemon"
	"github.com/qb20nh/duckhunt/internal/ipc"
)

var configPath = flag.String("config", "", "path to config file")

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	switch flag.Arg(0) {
	case "status":
		cmdStatus()
	case "enable":
		cmdSetEnabled(true)
	case "disable":
		cmdSetEnabled(false)
	case "set":
		cmdSet(flag.Args()[1:])
	case "history":
		cmdHistory(flag.Args()[1:])
	case "reload":
		cmdReload()
	case "shutdown":
		cmdShutdown()
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", flag.Arg(0))
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `duckhuntctl - Control a running duckhuntd

Usage: duckhuntctl [-config <path>] <command> [options]

Commands:
  status     Show detection state and statistics
  enable     Enable detection
  disable    Disable detection
  set        Update detection parameters
  history    Show recent incidents
  reload     Reload the config file
  shutdown   Stop the daemon
  help       Show this help message

Set options:
  -threshold <ms>        Average-interval threshold
  -history <n>           Rolling window size
  -burst-keys <n>        Keys per burst window
  -burst-window <ms>     Burst window length
  -allow-auto-type <bool> Tolerate password managers

History options:
  -n <count>  Number of incidents to show (default 20)`)
}

// connect dials the daemon socket resolved from the config file.
func connect() *ipc.Client {
	cfg := loadConfig()

	socketPath := cfg.IPC.SocketPath
	if socketPath == "" {
		dataDir := cfg.Daemon.DataDir
		if dataDir == "" {
			dataDir = config.DefaultDataDir()
		}
		socketPath = daemon.NewHandle(dataDir).SocketPath()
	}

	client := ipc.NewClient(ipc.DefaultClientConfig(socketPath))
	if err := client.Connect(); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	return client
}

func loadConfig() *config.Config {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func cmdStatus() {
	client := connect()
	defer client.Close()

	st, err := client.Status()
	if err != nil {
		fatal(err)
	}

	fmt.Printf("duckhuntd %s (pid %d)\n", st.Version, st.PID)
	fmt.Printf("  uptime:     %s\n", st.Uptime.Round(time.Second))
	fmt.Printf("  detection:  %s\n", onOff(st.Enabled))
	fmt.Printf("  hook:       %s\n", installedStr(st.HookInstalled))
	fmt.Printf("  session:    %s\n", st.Stats.SessionState)
	if st.Armed {
		fmt.Println("  armed:      yes (anomaly episode in progress)")
	}
	if st.LockError != "" {
		fmt.Printf("  lock error: %s\n", st.LockError)
	}

	fmt.Println("\nDetection parameters:")
	d := st.Detection
	fmt.Printf("  threshold:       %d ms\n", d.ThresholdMs)
	fmt.Printf("  window:          %d intervals\n", d.HistorySize)
	fmt.Printf("  burst:           %d keys / %d ms\n", d.BurstKeys, d.BurstWindowMs)
	fmt.Printf("  allow auto-type: %v\n", d.AllowAutoType)

	fmt.Println("\nStatistics:")
	s := st.Stats
	fmt.Printf("  processed:  %d\n", s.Processed)
	fmt.Printf("  discarded:  %d\n", s.Discarded)
	fmt.Printf("  dropped:    %d\n", s.Dropped)
	fmt.Printf("  anomalies:  %d\n", s.Anomalies)
	if s.AvgIntervalMs > 0 {
		fmt.Printf("  avg interval: %.1f ms\n", s.AvgIntervalMs)
	}
	if s.EventsPerMin > 0 {
		fmt.Printf("  rate:       %.0f keys/min\n", s.EventsPerMin)
	}
	if !s.LastAnomaly.IsZero() {
		fmt.Printf("  last anomaly: %s (%s)\n", s.LastAnomaly.Format(time.RFC3339), s.LastReason)
	}
}

func cmdSetEnabled(enabled bool) {
	client := connect()
	defer client.Close()

	var (
		ack *ipc.Ack
		err error
	)
	if enabled {
		ack, err = client.Enable()
	} else {
		ack, err = client.Disable()
	}
	if err != nil {
		fatal(err)
	}

	verb := "disabled"
	if enabled {
		verb = "enabled"
	}
	if ack.Changed {
		fmt.Printf("Detection %s\n", verb)
	} else {
		fmt.Printf("Detection already %s\n", verb)
	}
}

func cmdSet(args []string) {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	threshold := fs.String("threshold", "", "average-interval threshold in ms")
	history := fs.String("history", "", "rolling window size")
	burstKeys := fs.String("burst-keys", "", "keys per burst window")
	burstWindow := fs.String("burst-window", "", "burst window length in ms")
	allowAutoType := fs.String("allow-auto-type", "", "tolerate password managers (true/false)")
	fs.Parse(args)

	var req ipc.UpdateConfigRequest
	touched := false

	if *threshold != "" {
		req.ThresholdMs = parseIntFlag("threshold", *threshold)
		touched = true
	}
	if *history != "" {
		req.HistorySize = parseIntFlag("history", *history)
		touched = true
	}
	if *burstKeys != "" {
		req.BurstKeys = parseIntFlag("burst-keys", *burstKeys)
		touched = true
	}
	if *burstWindow != "" {
		req.BurstWindowMs = parseIntFlag("burst-window", *burstWindow)
		touched = true
	}
	if *allowAutoType != "" {
		v, err := strconv.ParseBool(*allowAutoType)
		if err != nil {
			fmt.Fprintf(os.Stderr, "set: invalid -allow-auto-type value %q\n", *allowAutoType)
			os.Exit(1)
		}
		req.AllowAutoType = &v
		touched = true
	}

	if !touched {
		fmt.Fprintln(os.Stderr, "set: no parameters given")
		os.Exit(1)
	}

	client := connect()
	defer client.Close()

	ack, err := client.UpdateConfig(&req)
	if err != nil {
		fatal(err)
	}
	if !ack.Success {
		fmt.Fprintf(os.Stderr, "set: %s\n", ack.Error)
		os.Exit(1)
	}
	fmt.Println("Detection parameters updated")
}

func cmdHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	n := fs.Int("n", 20, "number of incidents to show")
	fs.Parse(args)

	client := connect()
	defer client.Close()

	resp, err := client.History(*n)
	if err != nil {
		fatal(err)
	}

	if len(resp.Incidents) == 0 {
		fmt.Println("No incidents recorded")
		return
	}

	for _, inc := range resp.Incidents {
		locked := ""
		if inc.Locked {
			locked = "  [locked]"
		}
		fmt.Printf("%s  %-16s  avg %.1f ms  window %d%s\n",
			inc.Timestamp.Format("2006-01-02 15:04:05"),
			inc.Reason, inc.AvgIntervalMs, inc.WindowFill, locked)
	}
}

func cmdReload() {
	client := connect()
	defer client.Close()

	ack, err := client.Reload()
	if err != nil {
		fatal(err)
	}
	if !ack.Success {
		fmt.Fprintf(os.Stderr, "reload: %s\n", ack.Error)
		os.Exit(1)
	}
	fmt.Println("Config reloaded")
}

func cmdShutdown() {
	client := connect()
	defer client.Close()

	if _, err := client.Shutdown(); err != nil {
		fatal(err)
	}
	fmt.Println("Shutdown requested")
}

func parseIntFlag(name, value string) *int {
	v, err := strconv.Atoi(value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "set: invalid -%s value %q\n", name, value)
		os.Exit(1)
	}
	return &v
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func installedStr(b bool) string {
	if b {
		return "installed"
	}
	return "not installed"
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
