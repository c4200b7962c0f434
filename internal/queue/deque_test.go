package queue

import (
	"sync"
	"testing"
	"time"
)

func TestPushPopFIFO(t *testing.T) {
	d := New[int](4)

	for i := 0; i < 4; i++ {
		if !d.PushBack(i) {
			t.Fatalf("push %d failed", i)
		}
	}

	for i := 0; i < 4; i++ {
		v, ok := d.Pop()
		if !ok || v != i {
			t.Fatalf("expected %d, got %d (ok=%v)", i, v, ok)
		}
	}
}

func TestTryPushBackFullReturnsFalse(t *testing.T) {
	d := New[int](1)
	if !d.TryPushBack(1) {
		t.Fatalf("expected first push to succeed")
	}
	if d.TryPushBack(2) {
		t.Fatalf("expected push into full queue to fail")
	}
}

func TestCloseUnblocksWaitingConsumer(t *testing.T) {
	d := New[int](1)
	var wg sync.WaitGroup
	wg.Add(1)

	var got bool
	go func() {
		defer wg.Done()
		_, got = d.Pop()
	}()

	time.Sleep(20 * time.Millisecond)
	d.Close()
	wg.Wait()

	if got {
		t.Fatalf("expected Pop to fail after Close")
	}
}

func TestCloseUnblocksWaitingProducer(t *testing.T) {
	d := New[int](1)
	d.PushBack(1) // fill it

	var wg sync.WaitGroup
	wg.Add(1)

	var pushed bool
	go func() {
		defer wg.Done()
		pushed = d.PushBack(2)
	}()

	time.Sleep(20 * time.Millisecond)
	d.Close()
	wg.Wait()

	if pushed {
		t.Fatalf("expected blocked push to fail after Close")
	}
}

func TestPopTimeoutExpires(t *testing.T) {
	d := New[int](1)

	start := time.Now()
	_, ok := d.PopTimeout(30 * time.Millisecond)
	elapsed := time.Since(start)

	if ok {
		t.Fatalf("expected timeout, got a value")
	}
	if elapsed < 25*time.Millisecond {
		t.Fatalf("returned too early: %v", elapsed)
	}
}

func TestPopTimeoutDeliversBeforeExpiry(t *testing.T) {
	d := New[int](1)

	go func() {
		time.Sleep(10 * time.Millisecond)
		d.PushBack(42)
	}()

	v, ok := d.PopTimeout(time.Second)
	if !ok || v != 42 {
		t.Fatalf("expected 42, got %d (ok=%v)", v, ok)
	}
}

func TestConcurrentProducersConsumersLiveness(t *testing.T) {
	d := New[int](8)
	const n = 200

	var wg sync.WaitGroup
	wg.Add(1)

	received := make([]int, 0, n)
	var mu sync.Mutex

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			v, ok := d.Pop()
			if !ok {
				return
			}
			mu.Lock()
			received = append(received, v)
			mu.Unlock()
		}
	}()

	var producers sync.WaitGroup
	for p := 0; p < 4; p++ {
		producers.Add(1)
		go func(base int) {
			defer producers.Done()
			for i := 0; i < n/4; i++ {
				d.PushBack(base + i)
			}
		}(p * 1000)
	}

	producers.Wait()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != n {
		t.Fatalf("expected %d items delivered, got %d", n, len(received))
	}
}

func TestFlushDiscardsWithoutClosing(t *testing.T) {
	d := New[int](4)
	d.PushBack(1)
	d.PushBack(2)

	d.Flush()

	if d.Size() != 0 {
		t.Fatalf("expected empty after flush")
	}
	if d.Closed() {
		t.Fatalf("flush must not close the queue")
	}
	if !d.PushBack(3) {
		t.Fatalf("expected queue to remain usable after flush")
	}
}
