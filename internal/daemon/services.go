package daemon

import (
	"context"
	"errors"

	"github.com/thejerf/suture/v4"

	"github.com/qb20nh/duckhunt/internal/hook"
	"github.com/qb20nh/duckhunt/internal/logging"
	"github.com/qb20nh/duckhunt/internal/session"
)

// hookService supervises the platform keyboard hook. An unavailable or
// permission-denied hook is fatal for the whole daemon: without events
// there is nothing to defend, so the tree terminates and Run maps the
// failure to the hook-install exit code. Transient failures (a device
// read error) return normally and suture restarts the hook with backoff.
type hookService struct {
	hook  hook.Hook
	log   *logging.Logger
	fatal chan<- error
}

func (s *hookService) String() string { return "key-hook" }

func (s *hookService) Serve(ctx context.Context) error {
	if err := s.hook.Start(ctx); err != nil {
		if errors.Is(err, hook.ErrNotAvailable) || errors.Is(err, hook.ErrPermissionDenied) {
			select {
			case s.fatal <- err:
			default:
			}
			return suture.ErrTerminateSupervisorTree
		}
		return err
	}

	<-ctx.Done()
	if err := s.hook.Stop(); err != nil {
		s.log.Warn("hook stop failed", "error", err)
	}
	return ctx.Err()
}

// monitorService supervises the session monitor. Platforms without
// session notifications degrade gracefully: the session is assumed
// Active and detection keeps running.
type monitorService struct {
	monitor session.Monitor
	log     *logging.Logger
}

func (s *monitorService) String() string { return "session-monitor" }

func (s *monitorService) Serve(ctx context.Context) error {
	if err := s.monitor.Start(ctx); err != nil {
		if errors.Is(err, session.ErrNotAvailable) {
			s.log.Warn("session notifications unavailable, assuming active session", "error", err)
			<-ctx.Done()
			return ctx.Err()
		}
		return err
	}

	<-ctx.Done()
	if err := s.monitor.Stop(); err != nil {
		s.log.Warn("session monitor stop failed", "error", err)
	}
	return ctx.Err()
}

// reloader applies config reloads triggered by the file watcher or
// SIGHUP.
type reloader struct {
	triggers <-chan struct{}
	signals  <-chan struct{}
	apply    func() error
	log      *logging.Logger
}

func (r *reloader) String() string { return "config-reloader" }

func (r *reloader) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.triggers:
			r.reload("file change")
		case <-r.signals:
			r.reload("SIGHUP")
		}
	}
}

func (r *reloader) reload(cause string) {
	if err := r.apply(); err != nil {
		// The previous config stays live; a bad edit must not take the
		// daemon's protection down.
		r.log.Error("config reload failed", "cause", cause, "error", err)
		return
	}
	r.log.Info("config reloaded", "cause", cause)
}
