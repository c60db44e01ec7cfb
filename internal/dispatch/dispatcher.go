// Package dispatch defines the seam to the external notification system.
// Delivery transport (email, push, webhooks) lives outside this pipeline;
// dispatch here is fire-and-forget.
package dispatch

import (
	"context"

	"github.com/secalert-agent/internal/match"
	"github.com/secalert-agent/pkg/logger"
)

// Dispatcher consumes the ordered delivery list for a classified article.
// Implementations must not assume delivery success is reported back.
type Dispatcher interface {
	Dispatch(ctx context.Context, deliveries []match.Delivery) error
}

// LogDispatcher records deliveries to the structured log. It stands in for
// the real notification system in the daemon and in tests.
type LogDispatcher struct {
	log *logger.Logger
}

// NewLogDispatcher creates a logging dispatcher.
func NewLogDispatcher(log *logger.Logger) *LogDispatcher {
	return &LogDispatcher{log: log.WithComponent("dispatcher")}
}

func (d *LogDispatcher) Dispatch(_ context.Context, deliveries []match.Delivery) error {
	for _, del := range deliveries {
		d.log.Info().
			Uint("subscription_id", del.Subscription.ID).
			Str("subscriber_id", del.Subscription.SubscriberID).
			Uint("article_id", del.Article.ID).
			Str("alert_type", string(del.Article.AlertType)).
			Str("severity", string(del.Article.Severity)).
			Msg("Delivery dispatched")
	}
	return nil
}

var _ Dispatcher = (*LogDispatcher)(nil)
