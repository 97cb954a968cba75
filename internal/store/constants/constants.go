package constants

import "time"

const (
	// DbBasePath is the default data directory. Overridable via GRABARR_DATA_DIR.
	DbBasePath = "/var/lib/grabarr"

	DbFileName       = "grabarr.db"
	KeyFileName      = "credential.key"
	RcdAuthFileName  = "rcd.auth"
	InstanceLockName = "grabarr.lock"
)

// Transfer daemon defaults.
const (
	RcdAddress     = "127.0.0.1:5572"
	RcdCallTimeout = 30 * time.Second
	RcdStartupWait = 1 * time.Second
)

// Engine defaults. The sqlite system_settings store overrides these at runtime.
const (
	DefaultFailureCooldownSeconds = 60
	DefaultMaxHistoryEntries      = 50

	MonitorPollInterval = 500 * time.Millisecond
	// StopGracePeriod bounds how long a cancelled monitor keeps polling for the
	// daemon to confirm the stop before it records the run as failed itself.
	StopGracePeriod = 30 * time.Second
)

// Transfer tuning defaults, all overridable per-setting.
const (
	DefaultTransfers          = 4
	DefaultCheckers           = 8
	DefaultBufferSize         = "16M"
	DefaultMultiThreadCutoff  = "256M"
	DefaultMultiThreadStreams = 4

	DefaultS3ChunkSize         = "64M"
	DefaultS3UploadConcurrency = 8
)

// Browse session defaults.
const (
	SessionIdleTimeout  = 300 * time.Second
	SessionSweepPeriod  = 60 * time.Second
	BrowseFallbackRate  = 5 // operations/list calls per second against a temp profile
	BrowseFallbackBurst = 5
)

// System settings keys.
const (
	SettingFailureCooldownSeconds = "failure_cooldown_seconds"
	SettingMaxHistoryEntries      = "max_history_entries"
	SettingPreActionAbort         = "pre_action_abort"
	SettingTransfers              = "transfers"
	SettingCheckers               = "checkers"
	SettingBufferSize             = "buffer_size"
	SettingMultiThreadCutoff      = "multi_thread_cutoff"
	SettingMultiThreadStreams     = "multi_thread_streams"
	SettingS3ChunkSize            = "s3_chunk_size"
	SettingS3UploadConcurrency    = "s3_upload_concurrency"
	SettingNotificationURL        = "notification_url"
)

// DefaultPorts maps a remote type to its protocol default port.
var DefaultPorts = map[string]string{
	"sftp": "22",
	"ftp":  "21",
	"smb":  "445",
}
