package bot

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	kit "websum/internal/transport"
	"websum/pkg/tgui"
)

// statusEditor funnels every status edit through one limiter so a burst of
// job transitions stays under Telegram's global send budget.
type statusEditor struct {
	sender kit.Sender
	lim    *rate.Limiter
}

func newStatusEditor(sender kit.Sender, perSecond float64, burst int) *statusEditor {
	lim := rate.NewLimiter(rate.Inf, 0)
	if perSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return &statusEditor{sender: sender, lim: lim}
}

func (e *statusEditor) edit(ctx context.Context, ref kit.MessageRef, m tgui.Message) error {
	if err := e.lim.Wait(ctx); err != nil {
		return err
	}
	return m.Edit(ctx, e.sender, ref)
}

// Status stages. A status message never moves backwards.
const (
	stageQueued = iota
	stageRunning
	stageDone
)

// statusMessage is the reply that tracks one job. Edits are serialized and
// dropped once a later stage has been shown.
type statusMessage struct {
	ed  *statusEditor
	ref kit.MessageRef

	mu    sync.Mutex
	stage int
}

func (s *statusMessage) set(ctx context.Context, stage int, m tgui.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stage < s.stage {
		return nil
	}
	s.stage = stage
	return s.ed.edit(ctx, s.ref, m)
}
