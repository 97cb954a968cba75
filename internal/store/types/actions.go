package types

import "encoding/json"

// Action type tags. ActionCommand is retained for backward compatibility only;
// executing it always fails with a fixed "disabled for security" error.
const (
	ActionWebhook      = "webhook"
	ActionDelay        = "delay"
	ActionRclone       = "rclone"
	ActionDocker       = "docker"
	ActionNotification = "notification"
	ActionCommand      = "command"
)

// Trigger tags naming the lifecycle points an action can bind to.
const (
	TriggerPre         = "pre"
	TriggerPostSuccess = "post_success"
	TriggerPostFail    = "post_fail"
	TriggerPostAlways  = "post_always"
)

var ValidTriggers = map[string]bool{
	TriggerPre:         true,
	TriggerPostSuccess: true,
	TriggerPostFail:    true,
	TriggerPostAlways:  true,
}

type Action struct {
	ID     int64           `json:"id"`
	Name   string          `json:"name"`
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// JobAction binds an Action to a Job at one trigger point. Order sorts the
// pipeline for that trigger ascending.
type JobAction struct {
	ID       int64  `json:"id"`
	JobID    int64  `json:"job_id"`
	ActionID int64  `json:"action_id"`
	Trigger  string `json:"trigger"`
	Order    int    `json:"order"`

	Action *Action `json:"action,omitempty"`
}

// Typed per-variant configs. Unknown type tags are rejected when the action is
// created, not when it runs.

type WebhookConfig struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Body    string            `json:"body,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type DelayConfig struct {
	Seconds float64 `json:"seconds"`
}

type RcloneConfig struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Container operations a docker action may request.
const (
	ContainerStart   = "start"
	ContainerStop    = "stop"
	ContainerRestart = "restart"
)

type DockerConfig struct {
	// Container is a container id or name.
	Container string `json:"container"`
	Operation string `json:"operation"`
}

type NotificationConfig struct {
	Message string `json:"message"`
	// URL overrides the globally configured notification target when set.
	URL string `json:"url,omitempty"`
}
