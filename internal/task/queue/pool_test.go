package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "websum/pkg/logx"
)

func TestWorkerPoolRecoversPanic(t *testing.T) {
	t.Parallel()
	p := newWorkerPool(1, logx.Nop())
	defer p.stop()

	out, err := p.submit(context.Background(), context.Background(), func(context.Context) (any, error) {
		panic("bad job")
	})
	require.NoError(t, err)

	select {
	case res := <-out:
		require.ErrorIs(t, res.err, ErrJobPanicked)
		assert.Contains(t, res.err.Error(), "bad job")
	case <-time.After(time.Second):
		t.Fatal("no outcome")
	}

	out, err = p.submit(context.Background(), context.Background(), func(context.Context) (any, error) { return 7, nil })
	require.NoError(t, err)
	res := <-out
	require.NoError(t, res.err)
	assert.Equal(t, 7, res.result)
}

func TestWorkerPoolSubmitAfterStop(t *testing.T) {
	t.Parallel()
	p := newWorkerPool(2, logx.Nop())
	p.stop()
	p.stop()

	_, err := p.submit(context.Background(), context.Background(), noop)
	require.ErrorIs(t, err, errPoolClosed)
}

func TestWorkerPoolSubmitHonoursContext(t *testing.T) {
	t.Parallel()
	p := newWorkerPool(1, logx.Nop())
	defer p.stop()

	release := make(chan struct{})
	defer close(release)
	_, err := p.submit(context.Background(), context.Background(), func(context.Context) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.submit(ctx, context.Background(), noop)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
