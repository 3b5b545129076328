package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

func event(kind domain.EventKind, detail string) domain.Event {
	return domain.Event{Kind: kind, Game: "a8db", Detail: detail, At: time.Now()}
}

func TestDrainOrdersHighBeforeNormal(t *testing.T) {
	q := New(10)
	require.NoError(t, q.Enqueue(event(domain.EventOpportunity, "n1"), PriorityNormal))
	require.NoError(t, q.Enqueue(event(domain.EventTradeFilled, "h1"), PriorityHigh))
	require.NoError(t, q.Enqueue(event(domain.EventOpportunity, "n2"), PriorityNormal))
	require.NoError(t, q.Enqueue(event(domain.EventTradeFailed, "h2"), PriorityHigh))

	ctx := context.Background()
	var got []string
	for i := 0; i < 4; i++ {
		ev, err := q.Drain(ctx)
		require.NoError(t, err)
		got = append(got, ev.Detail)
	}
	assert.Equal(t, []string{"h1", "h2", "n1", "n2"}, got)
}

func TestOverflowDropsOldestNormalFirst(t *testing.T) {
	q := New(3)
	require.NoError(t, q.Enqueue(event(domain.EventOpportunity, "n1"), PriorityNormal))
	require.NoError(t, q.Enqueue(event(domain.EventOpportunity, "n2"), PriorityNormal))
	require.NoError(t, q.Enqueue(event(domain.EventTradeFilled, "h1"), PriorityHigh))
	require.NoError(t, q.Enqueue(event(domain.EventTradeFilled, "h2"), PriorityHigh))

	stats := q.Stats()
	assert.Equal(t, int64(1), stats.DroppedNormal)
	assert.Equal(t, int64(0), stats.DroppedHigh)
	assert.Equal(t, 2, stats.High)
	assert.Equal(t, 1, stats.Normal)

	ctx := context.Background()
	var got []string
	for i := 0; i < 3; i++ {
		ev, err := q.Drain(ctx)
		require.NoError(t, err)
		got = append(got, ev.Detail)
	}
	assert.Equal(t, []string{"h1", "h2", "n2"}, got)
}

func TestOverflowDropsHighOnlyAsLastResort(t *testing.T) {
	q := New(2)
	require.NoError(t, q.Enqueue(event(domain.EventTradeFilled, "h1"), PriorityHigh))
	require.NoError(t, q.Enqueue(event(domain.EventTradeFilled, "h2"), PriorityHigh))
	require.NoError(t, q.Enqueue(event(domain.EventTradeFilled, "h3"), PriorityHigh))

	stats := q.Stats()
	assert.Equal(t, int64(1), stats.DroppedHigh)

	ev, err := q.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "h2", ev.Detail)
}

func TestOverflowShedsIncomingNormalOverStoredHigh(t *testing.T) {
	q := New(2)
	require.NoError(t, q.Enqueue(event(domain.EventTradeFilled, "h1"), PriorityHigh))
	require.NoError(t, q.Enqueue(event(domain.EventTradeFilled, "h2"), PriorityHigh))
	require.NoError(t, q.Enqueue(event(domain.EventOpportunity, "n1"), PriorityNormal))

	stats := q.Stats()
	assert.Equal(t, int64(1), stats.DroppedNormal, "the incoming normal event is the one shed")
	assert.Equal(t, int64(0), stats.DroppedHigh)
	assert.Equal(t, 2, stats.High)
	assert.Equal(t, 0, stats.Normal)

	ctx := context.Background()
	var got []string
	for i := 0; i < 2; i++ {
		ev, err := q.Drain(ctx)
		require.NoError(t, err)
		got = append(got, ev.Detail)
	}
	assert.Equal(t, []string{"h1", "h2"}, got)
}

func TestDrainBlocksUntilEnqueue(t *testing.T) {
	q := New(10)
	got := make(chan domain.Event, 1)
	go func() {
		ev, err := q.Drain(context.Background())
		if err == nil {
			got <- ev
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(event(domain.EventOpportunity, "n1"), PriorityNormal))

	select {
	case ev := <-got:
		assert.Equal(t, "n1", ev.Detail)
	case <-time.After(time.Second):
		t.Fatal("drain did not wake")
	}
}

func TestDrainHonorsContext(t *testing.T) {
	q := New(10)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Drain(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseDrainsRemainderThenFails(t *testing.T) {
	q := New(10)
	require.NoError(t, q.Enqueue(event(domain.EventOpportunity, "n1"), PriorityNormal))
	q.Close()

	require.ErrorIs(t, q.Enqueue(event(domain.EventOpportunity, "n2"), PriorityNormal), domain.ErrQueueClosed)

	ev, err := q.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "n1", ev.Detail)

	_, err = q.Drain(context.Background())
	require.ErrorIs(t, err, domain.ErrQueueClosed)
}

func TestPublishRoutesByKind(t *testing.T) {
	q := New(10)
	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, event(domain.EventOpportunity, "op")))
	require.NoError(t, q.Publish(ctx, event(domain.EventDegraded, "deg")))

	ev, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, "deg", ev.Detail, "degraded events ride the high lane")
}
