package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
)

type funcHandler struct {
	topic string
	calls atomic.Int32
	fn    func(n int32) error
}

func (h *funcHandler) Topic() string { return h.topic }

func (h *funcHandler) Handle(_ context.Context, _ []byte) error {
	return h.fn(h.calls.Add(1))
}

func newTestConsumer(t *testing.T, opts ...ConsumerOption) *Consumer {
	t.Helper()
	base := []ConsumerOption{
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(3, time.Millisecond, 2*time.Millisecond),
		WithConsumerMetrics(prometheus.NewRegistry()),
	}
	c, err := NewConsumer(append(base, opts...)...)
	if err != nil {
		t.Fatalf("new consumer: %v", err)
	}
	return c
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	if _, err := NewConsumer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithProducerMetrics(prometheus.NewRegistry()))
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestStartWithoutHandlers(t *testing.T) {
	c := newTestConsumer(t)
	if err := c.Start(); err == nil {
		t.Fatalf("expected error without handlers")
	}
}

func TestHandleRetriesUntilSuccess(t *testing.T) {
	c := newTestConsumer(t)
	h := &funcHandler{topic: "artifacts", fn: func(n int32) error {
		if n < 3 {
			return errors.New("transient")
		}
		return nil
	}}
	var onErr atomic.Int32
	c.WithConsumerHook(HookFuncs{Err: func(context.Context, string, kafka.Message, []byte, error) { onErr.Add(1) }})

	c.handle(h, &message{topic: "artifacts", km: kafka.Message{Value: []byte(`{}`)}})

	if got := h.calls.Load(); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
	if got := onErr.Load(); got != 2 {
		t.Fatalf("OnError calls = %d, want 2", got)
	}
	if got := testutil.ToFloat64(c.metrics.messages.WithLabelValues("artifacts", "ok")); got != 1 {
		t.Fatalf("ok counter = %v", got)
	}
}

func TestHandleGivesUpAfterRetryMax(t *testing.T) {
	c := newTestConsumer(t)
	h := &funcHandler{topic: "artifacts", fn: func(int32) error { return errors.New("bad payload") }}

	c.handle(h, &message{topic: "artifacts"})

	if got := h.calls.Load(); got != 4 {
		t.Fatalf("calls = %d, want 4", got)
	}
	if got := testutil.ToFloat64(c.metrics.messages.WithLabelValues("artifacts", "failed")); got != 1 {
		t.Fatalf("failed counter = %v", got)
	}
}

func TestBeforeHandleErrorSkipsHandler(t *testing.T) {
	c := newTestConsumer(t)
	h := &funcHandler{topic: "artifacts", fn: func(int32) error { return nil }}
	c.WithConsumerHook(HookFuncs{
		Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			return ctx, km, data, errors.New("rejected")
		},
	})

	c.handle(h, &message{topic: "artifacts"})

	if got := h.calls.Load(); got != 0 {
		t.Fatalf("handler called %d times", got)
	}
}

func TestHandleRecoversFromPanic(t *testing.T) {
	c := newTestConsumer(t)
	h := &funcHandler{topic: "artifacts", fn: func(int32) error { panic("boom") }}

	c.handle(h, &message{topic: "artifacts"})

	if got := testutil.ToFloat64(c.metrics.messages.WithLabelValues("artifacts", "panic")); got != 1 {
		t.Fatalf("panic counter = %v", got)
	}
}

func TestBackoffWithJitterBounds(t *testing.T) {
	min, max := 10*time.Millisecond, 80*time.Millisecond
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		if d <= 0 || d > max {
			t.Fatalf("attempt %d: backoff %v out of (0, %v]", attempt, d, max)
		}
	}
	if d := backoffWithJitter(0, 0, 0); d <= 0 {
		t.Fatalf("defaults produced %v", d)
	}
}

type orderHandler struct {
	mu   sync.Mutex
	seen map[int][]int
}

func (h *orderHandler) Topic() string { return "artifacts" }

func (h *orderHandler) Handle(_ context.Context, b []byte) error {
	var partition, offset int
	if _, err := fmt.Sscanf(string(b), "%d:%d", &partition, &offset); err != nil {
		return err
	}
	// early offsets are slow so a second worker on the same partition would overtake them
	if offset%2 == 0 {
		time.Sleep(time.Millisecond)
	}
	h.mu.Lock()
	h.seen[partition] = append(h.seen[partition], offset)
	h.mu.Unlock()
	return nil
}

func TestPartitionOrderWithManyWorkers(t *testing.T) {
	c := newTestConsumer(t, WithConsumerWorkers(4))
	h := &orderHandler{seen: make(map[int][]int)}
	c.RegisterHandler(h)
	c.startWorkers()

	const partitions, perPartition = 3, 20
	for o := 0; o < perPartition; o++ {
		for p := 0; p < partitions; p++ {
			km := kafka.Message{Partition: p, Offset: int64(o), Value: []byte(fmt.Sprintf("%d:%d", p, o))}
			if !c.dispatch(&message{topic: "artifacts", km: km}) {
				t.Fatalf("dispatch refused")
			}
		}
	}
	c.closeQueues()
	c.wg.Wait()

	for p := 0; p < partitions; p++ {
		got := h.seen[p]
		if len(got) != perPartition {
			t.Fatalf("partition %d handled %d messages", p, len(got))
		}
		for i, o := range got {
			if o != i {
				t.Fatalf("partition %d out of order: %v", p, got)
			}
		}
	}
}

func TestWorkerForIsStable(t *testing.T) {
	c := newTestConsumer(t, WithConsumerWorkers(3))
	for p := 0; p < 10; p++ {
		w := c.workerFor("artifacts", p)
		if w < 0 || w >= 3 || w != c.workerFor("artifacts", p) {
			t.Fatalf("partition %d -> worker %d", p, w)
		}
	}
}
