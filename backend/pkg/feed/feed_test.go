package feed

import (
	"sync"
	"testing"
	"time"
)

func TestFeed_LatestValueCoalescing(t *testing.T) {
	t.Parallel()

	f := New[int]()
	sub := f.Subscribe(1)
	defer sub.Close()

	dropped := 0
	for i := 1; i <= 5; i++ {
		dropped += f.Send(i)
	}

	if dropped != 4 {
		t.Errorf("Send() dropped = %v, want 4", dropped)
	}

	if got := <-sub.C(); got != 5 {
		t.Errorf("received %v, want 5", got)
	}

	select {
	case v := <-sub.C():
		t.Errorf("unexpected extra value %v", v)
	default:
	}
}

func TestFeed_BufferedDropsOldest(t *testing.T) {
	t.Parallel()

	f := New[string]()
	sub := f.Subscribe(2)

	f.Send("a")
	f.Send("b")
	f.Send("c")

	want := []string{"b", "c"}
	for _, w := range want {
		if got := <-sub.C(); got != w {
			t.Errorf("received %v, want %v", got, w)
		}
	}
}

func TestFeed_MultipleSubscribers(t *testing.T) {
	t.Parallel()

	f := New[int]()
	a := f.Subscribe(1)
	b := f.Subscribe(1)

	f.Send(7)

	for _, s := range []*Subscription[int]{a, b} {
		if got := <-s.C(); got != 7 {
			t.Errorf("received %v, want 7", got)
		}
	}

	if f.Len() != 2 {
		t.Errorf("Len() = %v, want 2", f.Len())
	}
}

func TestNewLatest_Replay(t *testing.T) {
	t.Parallel()

	f := NewLatest[int]()

	if _, ok := f.Latest(); ok {
		t.Fatal("Latest() ok = true before any Send")
	}

	f.Send(3)

	sub := f.Subscribe(1)
	select {
	case got := <-sub.C():
		if got != 3 {
			t.Errorf("replayed %v, want 3", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no replayed value")
	}

	plain := New[int]()
	plain.Send(3)

	select {
	case v := <-plain.Subscribe(1).C():
		t.Errorf("New() feed replayed %v", v)
	default:
	}
}

func TestSubscription_Close(t *testing.T) {
	t.Parallel()

	f := New[int]()
	sub := f.Subscribe(1)

	sub.Close()
	sub.Close()

	if _, ok := <-sub.C(); ok {
		t.Error("channel open after Close()")
	}

	if f.Len() != 0 {
		t.Errorf("Len() = %v, want 0", f.Len())
	}

	f.Send(1)
}

func TestFeed_Close(t *testing.T) {
	t.Parallel()

	f := New[int]()
	sub := f.Subscribe(1)

	f.Close()
	sub.Close()

	if _, ok := <-sub.C(); ok {
		t.Error("channel open after feed Close()")
	}

	late := f.Subscribe(1)
	if _, ok := <-late.C(); ok {
		t.Error("subscription on closed feed should be closed")
	}

	if n := f.Send(1); n != 0 {
		t.Errorf("Send() on closed feed = %v, want 0", n)
	}
}

func TestFeed_ConcurrentSendNeverBlocks(t *testing.T) {
	t.Parallel()

	f := New[int]()
	sub := f.Subscribe(1)
	defer sub.Close()

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				f.Send(g*1000 + i)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Send() blocked without a reader")
	}
}
