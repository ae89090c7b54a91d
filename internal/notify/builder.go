package notify

import (
	"github.com/arkhive/arkhive/internal/config"
)

// BuildNotifier assembles the configured sinks. Returns nil when no
// sink is configured so callers can skip notification entirely.
func BuildNotifier(cfg *config.Config) Notifier {
	var notifiers []Notifier

	if cfg.Notify.SlackWebhook != "" {
		notifiers = append(notifiers, NewSlackNotifier(cfg.Notify.SlackWebhook, ""))
	}

	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, NewWebhookNotifier(cfg.Notify.WebhookURL, "", "", nil))
	}

	if len(notifiers) == 0 {
		return nil
	}
	if len(notifiers) == 1 {
		return notifiers[0]
	}
	return &MultiNotifier{Notifiers: notifiers}
}
