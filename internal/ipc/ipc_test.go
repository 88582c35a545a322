package ipc

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qb20nh/duckhunt/internal/config"
	"github.com/qb20nh/duckhunt/internal/event"
	"github.com/qb20nh/duckhunt/internal/logging"
	"github.com/qb20nh/duckhunt/internal/pipeline"
	"github.com/qb20nh/duckhunt/internal/reaction"
	"github.com/qb20nh/duckhunt/internal/session"
	"github.com/qb20nh/duckhunt/internal/store"
)

func TestHeaderRoundTrip(t *testing.T) {
	msg := NewMessage(MsgStatus, 42, []byte(`{"x":1}`))

	var buf bytes.Buffer
	require.NoError(t, msg.Write(&buf))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, MsgStatus, got.Header.Type)
	assert.Equal(t, uint32(42), got.Header.RequestID)
	assert.Equal(t, []byte(`{"x":1}`), got.Payload)
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = 0xde
	buf[1] = 0xad

	_, err := ReadHeader(bytes.NewReader(buf))
	assert.ErrorContains(t, err, "invalid magic")
}

func TestReadMessageRejectsOversizedPayload(t *testing.T) {
	h := Header{
		Magic:   ProtocolMagic,
		Version: ProtocolVersion,
		Type:    MsgStatus,
		Length:  maxPayload + 1,
	}
	var buf bytes.Buffer
	require.NoError(t, h.Write(&buf))

	_, err := ReadMessage(&buf)
	assert.ErrorContains(t, err, "payload too large")
}

type testDaemon struct {
	server   *Server
	client   *Client
	cfgStore *config.Store
	journal  *store.Journal
	shutdown chan struct{}
}

func newTestDaemon(t *testing.T) *testDaemon {
	t.Helper()

	dir := t.TempDir()
	socketPath := filepath.Join(dir, "daemon.sock")

	cfgStore := config.NewStore(config.DefaultDetection(), true)
	monitor := session.NewSimulated()
	reactor := reaction.NewController(nopLocker{}, nopNotifier{}, logging.Default())

	journal, err := store.Open(filepath.Join(dir, "incidents.db"), 100)
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	queue := event.NewQueue(64)
	worker := pipeline.New(queue, cfgStore, monitor, reactor, journal, logging.Default())

	shutdown := make(chan struct{})
	fileCfg := config.Default()
	handler := NewDaemonHandler(DaemonHandlerConfig{
		Version:       "test",
		CfgStore:      cfgStore,
		Worker:        worker,
		Reactor:       reactor,
		Journal:       journal,
		Log:           logging.Default(),
		HookInstalled: true,
		FileCfg:       fileCfg,
		CfgPath:       filepath.Join(dir, "duckhunt.toml"),
		Shutdown:      func() { close(shutdown) },
	})

	server := NewServer(socketPath, handler, logging.Default())
	require.NoError(t, server.Start())
	t.Cleanup(func() { server.Stop() })

	client := NewClient(DefaultClientConfig(socketPath))
	require.NoError(t, client.Connect())
	t.Cleanup(func() { client.Close() })

	return &testDaemon{
		server:   server,
		client:   client,
		cfgStore: cfgStore,
		journal:  journal,
		shutdown: shutdown,
	}
}

type nopLocker struct{}

func (nopLocker) Lock() error { return nil }

type nopNotifier struct{}

func (nopNotifier) Notify(title, body string) error { return nil }

func TestPing(t *testing.T) {
	d := newTestDaemon(t)
	assert.NoError(t, d.client.Ping())

	// Pongs must reach their waiter without starving other requests.
	assert.NoError(t, d.client.Ping())
	_, err := d.client.Status()
	assert.NoError(t, err)
}

func TestStatusReflectsState(t *testing.T) {
	d := newTestDaemon(t)

	status, err := d.client.Status()
	require.NoError(t, err)

	assert.Equal(t, "test", status.Version)
	assert.True(t, status.Enabled)
	assert.True(t, status.HookInstalled)
	assert.False(t, status.Armed)
	assert.Equal(t, config.DefaultThresholdMs, status.Detection.ThresholdMs)
}

func TestEnableDisable(t *testing.T) {
	d := newTestDaemon(t)

	ack, err := d.client.Disable()
	require.NoError(t, err)
	assert.True(t, ack.Changed)
	assert.False(t, d.cfgStore.Enabled())

	// Repeating the request succeeds but reports no change.
	ack, err = d.client.Disable()
	require.NoError(t, err)
	assert.False(t, ack.Changed)

	ack, err = d.client.Enable()
	require.NoError(t, err)
	assert.True(t, ack.Changed)
	assert.True(t, d.cfgStore.Enabled())
}

func TestUpdateConfigApplies(t *testing.T) {
	d := newTestDaemon(t)

	threshold := 45
	autoType := false
	_, err := d.client.UpdateConfig(&UpdateConfigRequest{
		ThresholdMs:   &threshold,
		AllowAutoType: &autoType,
	})
	require.NoError(t, err)

	got := d.cfgStore.Detection()
	assert.Equal(t, 45, got.ThresholdMs)
	assert.False(t, got.AllowAutoType)
	assert.Equal(t, config.DefaultHistorySize, got.HistorySize, "untouched fields keep their values")
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	d := newTestDaemon(t)

	before := d.cfgStore.Detection()
	threshold := -5
	_, err := d.client.UpdateConfig(&UpdateConfigRequest{ThresholdMs: &threshold})
	assert.Error(t, err)
	assert.Equal(t, before, d.cfgStore.Detection(), "rejected update must not change the snapshot")
}

func TestGetConfig(t *testing.T) {
	d := newTestDaemon(t)

	cfg, err := d.client.GetConfig()
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, config.DefaultBurstKeys, cfg.Detection.BurstKeys)
}

func TestHistory(t *testing.T) {
	d := newTestDaemon(t)

	_, err := d.journal.Append(store.Incident{
		Timestamp:     time.Now(),
		Reason:        "threshold_breach",
		AvgIntervalMs: 4.2,
		WindowFill:    25,
		Locked:        true,
	})
	require.NoError(t, err)

	history, err := d.client.History(10)
	require.NoError(t, err)
	require.Len(t, history.Incidents, 1)
	assert.Equal(t, "threshold_breach", history.Incidents[0].Reason)
	assert.True(t, history.Incidents[0].Locked)
}

func TestShutdownRequest(t *testing.T) {
	d := newTestDaemon(t)

	ack, err := d.client.Shutdown()
	require.NoError(t, err)
	assert.True(t, ack.Success)

	select {
	case <-d.shutdown:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback not invoked")
	}
}

func TestConcurrentRequests(t *testing.T) {
	d := newTestDaemon(t)

	done := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			_, err := d.client.Status()
			done <- err
		}()
	}
	for i := 0; i < 20; i++ {
		assert.NoError(t, <-done)
	}
}
