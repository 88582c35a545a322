package config

// Detection defaults. threshold_ms=30 flags a sustained average below
// 30ms between keys (roughly 400 WPM, beyond sustained human typing);
// history_size=25 intervals smooths over individual fast key pairs.
const (
	DefaultThresholdMs   = 30
	DefaultHistorySize   = 25
	DefaultBurstKeys     = 10
	DefaultBurstWindowMs = 100
	DefaultJournalMax    = 10000
)

// DefaultDetection returns the default detection parameters.
func DefaultDetection() Detection {
	return Detection{
		ThresholdMs:   DefaultThresholdMs,
		HistorySize:   DefaultHistorySize,
		BurstKeys:     DefaultBurstKeys,
		BurstWindowMs: DefaultBurstWindowMs,
		AllowAutoType: true,
	}
}

// Default returns a fully-populated default configuration.
func Default() *Config {
	return &Config{
		Detection: DefaultDetection(),
		Daemon: Daemon{
			DataDir: DefaultDataDir(),
			Enabled: true,
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Journal: Journal{
			Enabled:    true,
			MaxRecords: DefaultJournalMax,
		},
	}
}

// applyDefaults fills zero-valued fields after decoding a partial file.
func (c *Config) applyDefaults() {
	if c.Detection.ThresholdMs == 0 {
		c.Detection.ThresholdMs = DefaultThresholdMs
	}
	if c.Detection.HistorySize == 0 {
		c.Detection.HistorySize = DefaultHistorySize
	}
	if c.Detection.BurstKeys == 0 {
		c.Detection.BurstKeys = DefaultBurstKeys
	}
	if c.Detection.BurstWindowMs == 0 {
		c.Detection.BurstWindowMs = DefaultBurstWindowMs
	}
	if c.Daemon.DataDir == "" {
		c.Daemon.DataDir = DefaultDataDir()
	}
	if c.Journal.MaxRecords == 0 {
		c.Journal.MaxRecords = DefaultJournalMax
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
