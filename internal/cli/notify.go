package cli

import (
	"context"
	"time"

	"github.com/agusx1211/ralphloop/internal/config"
	"github.com/agusx1211/ralphloop/internal/logging"
	"github.com/agusx1211/ralphloop/internal/pushover"
)

// pushoverAPIURL is overridden in tests.
var pushoverAPIURL = pushover.DefaultAPIURL

// notify sends the verdict to Pushover when credentials are configured.
// Delivery failures are logged only.
func notify(cfg *config.Config, runID string, v verdict) {
	client := &pushover.Client{
		UserKey:  cfg.Notify.Pushover.UserKey,
		AppToken: cfg.Notify.Pushover.AppToken,
		APIURL:   pushoverAPIURL,
	}
	if !client.Configured() {
		return
	}

	priority := pushover.PriorityNormal
	if v.code == ExitFailure {
		priority = pushover.PriorityHigh
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := client.Send(ctx, pushover.Message{
		Title:    "ralph-loop " + v.label,
		Body:     v.detail + "\nrun " + runID,
		Priority: priority,
	})
	if err != nil {
		log := logging.Component("cli")
		log.Warn().Err(err).Msg("failed to send pushover notification")
	}
}
