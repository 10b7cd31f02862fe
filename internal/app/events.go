package app

import (
	"context"
	"strings"

	"websum/internal/eventbus"
	"websum/internal/task/queue"
	logx "websum/pkg/logx"
)

// logJobEvents writes scheduler lifecycle events to log until ctx is done.
func logJobEvents(ctx context.Context, bus eventbus.Bus, log logx.Logger) {
	events, unsub := bus.Subscribe(128, "job.")
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			logJobEvent(log, e)
		}
	}
}

func logJobEvent(log logx.Logger, e eventbus.Event) {
	ev, ok := e.Data.(queue.JobEvent)
	if !ok {
		log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		return
	}
	fields := []logx.Field{
		logx.String("type", e.Type),
		logx.String("job", ev.ID),
		logx.Int64("chat_id", ev.ChatID),
		logx.String("kind", ev.Kind),
	}
	if ev.Pending > 0 {
		fields = append(fields, logx.Int("pending", ev.Pending))
	}
	if ev.QueueDelay > 0 {
		fields = append(fields, logx.Duration("queue_delay", ev.QueueDelay))
	}
	if ev.Duration > 0 {
		fields = append(fields, logx.Duration("took", ev.Duration))
	}
	if strings.TrimSpace(ev.Error) != "" {
		fields = append(fields, logx.String("err", ev.Error))
	}

	switch e.Type {
	case queue.EventFailed, queue.EventRejected:
		log.Warn("job event", fields...)
	case queue.EventSucceeded:
		log.Info("job event", fields...)
	default:
		log.Debug("job event", fields...)
	}
}
