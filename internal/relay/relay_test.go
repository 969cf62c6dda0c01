package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/approval-flow/internal/domain"
)

// fakeSource эмулирует ProcessPending поверх слайса: публикует по
// порядку, на первой ошибке останавливает пачку — как Postgres-реализация.
type fakeSource struct {
	mu      sync.Mutex
	pending []domain.OutboxEvent
}

func (f *fakeSource) add(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.pending = append(f.pending, domain.OutboxEvent{
			ID:            uuid.New(),
			AggregateType: domain.AggregateApproval,
			EventType:     domain.EventStepApproved,
			Payload:       `{"stepOrder":1}`,
			Status:        domain.OutboxPending,
			CreatedAt:     time.Now().UTC(),
		})
	}
}

func (f *fakeSource) left() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *fakeSource) ProcessPending(ctx context.Context, limit int, publish func(ctx context.Context, ev domain.OutboxEvent) error) (int, error) {
	f.mu.Lock()
	batch := f.pending
	if len(batch) > limit {
		batch = batch[:limit]
	}
	f.mu.Unlock()

	sent := 0
	for _, ev := range batch {
		if err := publish(ctx, ev); err != nil {
			break
		}
		sent++
	}

	f.mu.Lock()
	f.pending = f.pending[sent:]
	f.mu.Unlock()
	return sent, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []domain.OutboxEvent
	failAfter int // <0: не падать
}

func (p *fakePublisher) Publish(ctx context.Context, ev domain.OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAfter >= 0 && len(p.published) >= p.failAfter {
		return errors.New("bus unavailable")
	}
	p.published = append(p.published, ev)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func TestRelay_DrainsBacklogAcrossBatches(t *testing.T) {
	src := &fakeSource{}
	src.add(250) // больше двух пачек при batch_size=100
	pub := &fakePublisher{failAfter: -1}

	r := New(src, pub, zap.NewNop(), nil, 10*time.Millisecond, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return src.left() == 0 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 250, pub.count())
}

func TestRelay_PublisherFailureLeavesEventsPending(t *testing.T) {
	src := &fakeSource{}
	src.add(10)
	pub := &fakePublisher{failAfter: 4} // шина падает после четырех событий

	r := New(src, pub, zap.NewNop(), nil, 5*time.Millisecond, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	// Опубликованное зафиксировано, остальное ждет следующего прохода
	assert.Equal(t, 4, pub.count())
	assert.Equal(t, 6, src.left())
}

func TestRelay_FinalDrainOnShutdown(t *testing.T) {
	src := &fakeSource{}
	pub := &fakePublisher{failAfter: -1}

	// Гигантский интервал: до тикера дело не дойдет, выгрести должен
	// финальный drain при остановке
	r := New(src, pub, zap.NewNop(), nil, time.Hour, 100)
	src.add(7)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}

	assert.Equal(t, 7, pub.count())
	assert.Equal(t, 0, src.left())
}
