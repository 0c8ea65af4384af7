package notify

import (
	"context"
	"log/slog"

	"carebridge/backend/internal/observability/metrics"
)

// Courier renders and sends one notification, recording the outcome.
type Courier struct {
	renderer *Renderer
	sender   EmailSender
	metrics  *metrics.NotifyMetrics
	log      *slog.Logger
}

func NewCourier(renderer *Renderer, sender EmailSender, m *metrics.NotifyMetrics, log *slog.Logger) *Courier {
	if log == nil {
		log = slog.Default()
	}
	return &Courier{renderer: renderer, sender: sender, metrics: m, log: log}
}

func (c *Courier) Deliver(ctx context.Context, n Notification) error {
	msg, err := c.renderer.Render(n)
	if err != nil {
		c.metrics.ObserveNotification(n.Template, "render_failed")
		c.log.ErrorContext(ctx, "notification render failed", slog.String("template", n.Template), slog.Any("error", err))
		return err
	}
	if err := c.sender.Send(ctx, msg); err != nil {
		c.metrics.ObserveNotification(n.Template, "failed")
		c.log.WarnContext(ctx, "notification send failed",
			slog.String("template", n.Template),
			slog.String("recipient", n.Recipient),
			slog.Any("error", err),
		)
		return err
	}
	c.metrics.ObserveNotification(n.Template, "sent")
	return nil
}
