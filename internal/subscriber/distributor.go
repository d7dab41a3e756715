package subscriber

import (
	"context"
	"log/slog"

	"signal-servicev1/config"
	"signal-servicev1/internal/model"
	"signal-servicev1/internal/notification"
)

// Distributor formats signals and fans them out to every active subscriber.
// Delivery failures are per-chat: one dead chat never blocks the rest.
type Distributor struct {
	manager  *Manager
	telegram *notification.TelegramClient
	params   *config.Params
	log      *slog.Logger
}

// NewDistributor builds the fan-out over the registry.
func NewDistributor(manager *Manager, telegram *notification.TelegramClient,
	params *config.Params, log *slog.Logger) *Distributor {
	if log == nil {
		log = slog.Default()
	}
	return &Distributor{
		manager:  manager,
		telegram: telegram,
		params:   params,
		log:      log.With(slog.String("component", "distributor")),
	}
}

// BroadcastSignal sends a new signal to all active subscribers and returns
// how many deliveries succeeded.
func (d *Distributor) BroadcastSignal(ctx context.Context, sig model.Signal) (int, error) {
	text := notification.FormatSignal(&sig, d.params.SuggestedLeverage, d.params.RecommendedRiskPct)
	return d.fanOut(ctx, text, true)
}

// BroadcastClosure sends a closure notification to all active subscribers.
func (d *Distributor) BroadcastClosure(ctx context.Context, sig model.Signal) (int, error) {
	text := notification.FormatClosure(&sig)
	return d.fanOut(ctx, text, false)
}

func (d *Distributor) fanOut(ctx context.Context, text string, countDelivery bool) (int, error) {
	subs, err := d.manager.Active()
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, sub := range subs {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if err := d.telegram.SendMessage(ctx, sub.ChatID, text); err != nil {
			d.log.Warn("delivery failed",
				slog.Int64("chat_id", sub.ChatID),
				slog.String("error", err.Error()))
			continue
		}
		delivered++
		if countDelivery {
			if err := d.manager.IncrementDelivered(sub.ChatID); err != nil {
				d.log.Warn("delivery counter update failed",
					slog.Int64("chat_id", sub.ChatID),
					slog.String("error", err.Error()))
			}
		}
	}

	d.log.Info("broadcast complete",
		slog.Int("subscribers", len(subs)),
		slog.Int("delivered", delivered))
	return delivered, nil
}

var _ model.Distributor = (*Distributor)(nil)
