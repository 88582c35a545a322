package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/qb20nh/duckhunt/internal/config"
	"github.com/qb20nh/duckhunt/internal/event"
	"github.com/qb20nh/duckhunt/internal/hook"
	"github.com/qb20nh/duckhunt/internal/ipc"
	"github.com/qb20nh/duckhunt/internal/logging"
	"github.com/qb20nh/duckhunt/internal/pipeline"
	"github.com/qb20nh/duckhunt/internal/reaction"
	"github.com/qb20nh/duckhunt/internal/session"
	"github.com/qb20nh/duckhunt/internal/store"
)

// ErrHookInstall means the keyboard hook could not be installed.
var ErrHookInstall = errors.New("keyboard hook installation failed")

// queueCapacity bounds the hook-to-pipeline queue. Bursty injection
// tools peak well below this; overflow drops oldest and counts.
const queueCapacity = 1024

// Options configures a daemon run.
type Options struct {
	Version    string
	ConfigPath string
}

// Run starts the daemon and blocks until shutdown. Error identity maps
// to exit codes in main: ErrAlreadyRunning and ErrHookInstall are
// distinguished from generic startup failure.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Close()
	logging.SetDefault(log)

	dataDir := cfg.Daemon.DataDir
	if dataDir == "" {
		dataDir = config.DefaultDataDir()
	}

	handle := NewHandle(dataDir)
	if err := handle.Acquire(); err != nil {
		return err
	}
	defer handle.Release()

	handle.WriteState(&State{
		PID:       os.Getpid(),
		StartedAt: time.Now(),
		Version:   opts.Version,
	})

	log.Info("duckhuntd starting",
		"version", opts.Version,
		"pid", os.Getpid(),
		"data_dir", dataDir,
		"threshold_ms", cfg.Detection.ThresholdMs,
		"history_size", cfg.Detection.HistorySize)

	// Assemble the pipeline.
	queue := event.NewQueue(queueCapacity)
	cfgStore := config.NewStore(cfg.Detection, cfg.Daemon.Enabled)
	monitor := session.New()
	reactor := reaction.NewController(reaction.NewLocker(), reaction.NewNotifier(), log)

	var journal *store.Journal
	if cfg.Journal.Enabled {
		path := cfg.Journal.Path
		if path == "" {
			path = filepath.Join(dataDir, "incidents.db")
		}
		journal, err = store.Open(path, cfg.Journal.MaxRecords)
		if err != nil {
			return fmt.Errorf("open incident journal: %w", err)
		}
		defer journal.Close()
	}

	worker := pipeline.New(queue, cfgStore, monitor, reactor, journal, log)

	// The hook callback only enqueues; classification happens on the
	// pipeline goroutine.
	keyHook := hook.New(queue.Push)
	if ok, reason := keyHook.Available(); !ok {
		return fmt.Errorf("%w: %s", ErrHookInstall, reason)
	}

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	defer signal.Stop(sighup)
	hupTriggers := make(chan struct{}, 1)
	go func() {
		for range sighup {
			select {
			case hupTriggers <- struct{}{}:
			default:
			}
		}
	}()

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = config.DefaultPath()
	}

	var handler *ipc.DaemonHandler
	reload := func() error {
		next, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfgStore.SwapDetection(next.Detection); err != nil {
			return err
		}
		cfgStore.SetEnabled(next.Daemon.Enabled)
		if handler != nil {
			handler.SetFileConfig(next)
		}
		return nil
	}

	socketPath := cfg.IPC.SocketPath
	if socketPath == "" {
		socketPath = handle.SocketPath()
	}
	handler = ipc.NewDaemonHandler(ipc.DaemonHandlerConfig{
		Version:       opts.Version,
		CfgStore:      cfgStore,
		Worker:        worker,
		Reactor:       reactor,
		Journal:       journal,
		Log:           log,
		HookInstalled: true,
		FileCfg:       cfg,
		CfgPath:       configPath,
		Reload:        reload,
		Shutdown:      cancel,
	})
	server := ipc.NewServer(socketPath, handler, log)

	watcher := config.NewWatcher(configPath)

	fatal := make(chan error, 1)

	tree := suture.New("duckhuntd", suture.Spec{
		EventHook:        (&sutureslog.Handler{Logger: log.Logger}).MustHook(),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
	tree.Add(&monitorService{monitor: monitor, log: log})
	tree.Add(&hookService{hook: keyHook, log: log, fatal: fatal})
	tree.Add(worker)
	tree.Add(server)
	tree.Add(watcher)
	tree.Add(&reloader{
		triggers: watcher.Reloads(),
		signals:  hupTriggers,
		apply:    reload,
		log:      log.WithComponent("reload"),
	})

	errCh := tree.ServeBackground(runCtx)

	select {
	case err := <-fatal:
		cancel()
		<-errCh
		return fmt.Errorf("%w: %v", ErrHookInstall, err)
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}

	log.Info("duckhuntd stopped")
	return nil
}

// newLogger builds the process logger from the config file settings.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	lc := logging.DefaultConfig()

	if cfg.Logging.Level != "" {
		level, err := logging.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		lc.Level = level
	}
	if cfg.Logging.Format != "" {
		format, err := logging.ParseFormat(cfg.Logging.Format)
		if err != nil {
			return nil, err
		}
		lc.Format = format
	}
	if cfg.Logging.Output != "" {
		lc.Output = cfg.Logging.Output
	}
	if cfg.Logging.File != "" {
		lc.FilePath = cfg.Logging.File
	}

	return logging.New(lc)
}
