package edge

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestSubscriptionRegistry_FirstAcquireSubscribes(t *testing.T) {
	broker := newFakeBroker()
	r := NewSubscriptionRegistry(broker, testLogger())

	release, err := r.Acquire("RED-1A2B3C4D/status", nil)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer release()

	if got := broker.subscribeCount("RED-1A2B3C4D/status"); got != 1 {
		t.Errorf("physical subscribes = %d, want 1", got)
	}
	if got := r.Count("RED-1A2B3C4D/status"); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestSubscriptionRegistry_SecondAcquireSharesSubscription(t *testing.T) {
	broker := newFakeBroker()
	r := NewSubscriptionRegistry(broker, testLogger())

	r1, _ := r.Acquire("topic", nil)
	r2, _ := r.Acquire("topic", nil)

	if got := broker.subscribeCount("topic"); got != 1 {
		t.Errorf("physical subscribes = %d, want 1", got)
	}
	if got := r.Count("topic"); got != 2 {
		t.Errorf("Count() = %d, want 2", got)
	}

	r1()
	if got := broker.unsubscribeCount("topic"); got != 0 {
		t.Errorf("unsubscribed while refs remain, count = %d", got)
	}

	r2()
	if got := broker.unsubscribeCount("topic"); got != 1 {
		t.Errorf("physical unsubscribes = %d, want 1", got)
	}
	if got := r.Count("topic"); got != 0 {
		t.Errorf("Count() = %d after full release, want 0", got)
	}
}

func TestSubscriptionRegistry_ReleaseIdempotent(t *testing.T) {
	broker := newFakeBroker()
	r := NewSubscriptionRegistry(broker, testLogger())

	release, _ := r.Acquire("topic", nil)
	release()
	release()
	release()

	if got := broker.unsubscribeCount("topic"); got != 1 {
		t.Errorf("physical unsubscribes = %d, want 1", got)
	}
	if got := r.Count("topic"); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

func TestSubscriptionRegistry_ReacquireAfterRelease(t *testing.T) {
	broker := newFakeBroker()
	r := NewSubscriptionRegistry(broker, testLogger())

	release, _ := r.Acquire("topic", nil)
	release()

	release2, err := r.Acquire("topic", nil)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	defer release2()

	if got := broker.subscribeCount("topic"); got != 2 {
		t.Errorf("physical subscribes = %d, want 2", got)
	}
}

func TestSubscriptionRegistry_ConcurrentAcquireRelease(t *testing.T) {
	broker := newFakeBroker()
	r := NewSubscriptionRegistry(broker, testLogger())

	const n = 32
	releases := make([]func(), n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			release, err := r.Acquire("topic", nil)
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			releases[i] = release
		}(i)
	}
	wg.Wait()

	if got := broker.subscribeCount("topic"); got != 1 {
		t.Errorf("physical subscribes under %d concurrent acquires = %d, want 1", n, got)
	}
	if got := r.Count("topic"); got != n {
		t.Errorf("Count() = %d, want %d", got, n)
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			releases[i]()
		}(i)
	}
	wg.Wait()

	if got := broker.unsubscribeCount("topic"); got != 1 {
		t.Errorf("physical unsubscribes under %d concurrent releases = %d, want 1", n, got)
	}
	if got := r.Count("topic"); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}
}

func TestSubscriptionRegistry_FanOut(t *testing.T) {
	broker := newFakeBroker()
	r := NewSubscriptionRegistry(broker, testLogger())

	var first, second atomic.Int32
	r1, _ := r.Acquire("topic", func(_ string, _ []byte) error {
		first.Add(1)
		return nil
	})
	r2, _ := r.Acquire("topic", func(_ string, _ []byte) error {
		second.Add(1)
		return nil
	})

	broker.deliver("topic", []byte(`{}`))

	if first.Load() != 1 || second.Load() != 1 {
		t.Errorf("listener calls = %d, %d, want 1, 1", first.Load(), second.Load())
	}

	r1()
	broker.deliver("topic", []byte(`{}`))

	if first.Load() != 1 {
		t.Errorf("released listener called again, calls = %d", first.Load())
	}
	if second.Load() != 2 {
		t.Errorf("remaining listener calls = %d, want 2", second.Load())
	}

	r2()
}

func TestSubscriptionRegistry_SubscribeFailure(t *testing.T) {
	broker := newFakeBroker()
	broker.subscribeErr = errBrokerDown
	r := NewSubscriptionRegistry(broker, testLogger())

	_, err := r.Acquire("topic", nil)
	if !errors.Is(err, ErrBrokerUnavailable) {
		t.Fatalf("Acquire() error = %v, want ErrBrokerUnavailable", err)
	}
	if got := r.Count("topic"); got != 0 {
		t.Errorf("Count() = %d after failed acquire, want 0", got)
	}

	// Registry recovers once the broker does
	broker.subscribeErr = nil
	release, err := r.Acquire("topic", nil)
	if err != nil {
		t.Fatalf("Acquire() after recovery error = %v", err)
	}
	release()
}
