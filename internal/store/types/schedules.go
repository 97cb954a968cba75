package types

// ScheduleTemplate names a reusable schedule. ScheduleType "cron" carries a
// raw cron expression; "interval" an every-N-minutes/hours period that the
// synchronizer converts to an approximate cron form.
type ScheduleTemplate struct {
	ID           int64                  `json:"id"`
	Name         string                 `json:"name"`
	ScheduleType string                 `json:"schedule_type"`
	Config       ScheduleTemplateConfig `json:"config"`
}

type ScheduleTemplateConfig struct {
	Cron    string `json:"cron,omitempty"`
	Minutes int    `json:"minutes,omitempty"`
	Hours   int    `json:"hours,omitempty"`
}

// SystemSetting is one row of the flat key-value settings store. Value holds a
// JSON-encoded scalar.
type SystemSetting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// BrowseEntry is one directory listing record, shaped like the daemon's
// operations/list output so every browse tier returns the same thing.
type BrowseEntry struct {
	Path     string `json:"Path"`
	Name     string `json:"Name"`
	Size     int64  `json:"Size"`
	ModTime  string `json:"ModTime"`
	IsDir    bool   `json:"IsDir"`
	MimeType string `json:"MimeType,omitempty"`
}
