package bot

import (
	"context"
	"fmt"

	"remindbot/internal/convo"
	"remindbot/internal/engine"
	"remindbot/internal/eventbus"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// watchEvents turns engine and dialog events the owner should hear about
// into notifier sends. Delivery itself never passes through here.
func (r *Router) watchEvents(ctx context.Context) {
	events, unsub := r.bus.Subscribe(16)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.handleEvent(ctx, ev)
		}
	}
}

func (r *Router) handleEvent(ctx context.Context, ev eventbus.Event) {
	switch ev.Type {
	case eventbus.EventReminderFailed:
		de, ok := ev.Data.(engine.DeliveryEvent)
		if !ok {
			return
		}
		text := fmt.Sprintf("I couldn't deliver reminder #%d after %d attempts. It's marked failed; set it again if you still need it.",
			de.ReminderID, de.Attempts)
		r.notify(ctx, de.OwnerID, text)
	case eventbus.EventConvoExpired:
		ee, ok := ev.Data.(convo.ExpiredEvent)
		if !ok {
			return
		}
		r.notify(ctx, ee.OwnerID, "We never finished setting up that reminder, so I dropped it. Start over whenever you're ready.")
	}
}

func (r *Router) notify(ctx context.Context, ownerID int64, text string) {
	err := r.notif.Notify(ctx, kit.Notification{
		Channel: "telegram",
		Target:  kit.ChatTarget{ChatID: ownerID},
		Text:    text,
	})
	if err != nil {
		r.log.Warn("owner notification failed", logx.Int64("owner_id", ownerID), logx.Err(err))
	}
}
