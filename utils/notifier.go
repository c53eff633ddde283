package utils

import "time"

type NotificationLevel string

const (
	NotifySuccess NotificationLevel = "success"
	NotifyInfo    NotificationLevel = "info"
	NotifyWarning NotificationLevel = "warning"
	NotifyError   NotificationLevel = "error"
)

// Notification is a user-facing message (snackbar) tied to a topic such as an upload id.
type Notification struct {
	Level     NotificationLevel `json:"level"`
	Topic     string            `json:"topic,omitempty"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
}

// Notifier delivers notifications fire-and-forget; implementations must not block.
type Notifier interface {
	Notify(n Notification)
}

// NopNotifier drops everything.
type NopNotifier struct{}

func (NopNotifier) Notify(Notification) {}
