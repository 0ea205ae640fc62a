package worker

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

	"github.com/lalithlochan/courier/internal/sqs"
)

type fakeReceiver struct {
	mu      sync.Mutex
	batches [][]sqs.Delivery
	deleted []string
	errs    int
}

func (r *fakeReceiver) Receive(ctx context.Context) ([]sqs.Delivery, error) {
	r.mu.Lock()
	if r.errs > 0 {
		r.errs--
		r.mu.Unlock()
		return nil, errors.New("network blip")
	}
	if len(r.batches) > 0 {
		b := r.batches[0]
		r.batches = r.batches[1:]
		r.mu.Unlock()
		return b, nil
	}
	r.mu.Unlock()

	// long poll with nothing to deliver
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (r *fakeReceiver) Delete(_ context.Context, receiptHandle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, receiptHandle)
	return nil
}

func (r *fakeReceiver) deletedHandles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deleted...)
}

type fakeDispatcher struct {
	mu     sync.Mutex
	seen   []uuid.UUID
	failOn uuid.UUID
}

func (d *fakeDispatcher) Dispatch(_ context.Context, id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = append(d.seen, id)
	if id == d.failOn {
		return errors.New("db down")
	}
	return nil
}

func TestConsumer_DispatchesAndDeletes(t *testing.T) {
	ok, failing := uuid.New(), uuid.New()
	recv := &fakeReceiver{
		errs: 1,
		batches: [][]sqs.Delivery{{
			{NotificationID: ok, ReceiptHandle: "rh-ok"},
			{NotificationID: failing, ReceiptHandle: "rh-fail"},
			{ReceiptHandle: "rh-poison", Err: errors.New("bad body")},
		}},
	}
	disp := &fakeDispatcher{failOn: failing}

	c := NewConsumer(recv, disp, zap.NewNop())
	c.errBackoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(recv.deletedHandles()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.ElementsMatch(t, []string{"rh-ok", "rh-poison"}, recv.deletedHandles())

	disp.mu.Lock()
	defer disp.mu.Unlock()
	assert.Equal(t, []uuid.UUID{ok, failing}, disp.seen)
}
