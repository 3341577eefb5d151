package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSubmitKeepsOrderPerKey(t *testing.T) {
	d := New(context.Background(), nil)

	var mu sync.Mutex
	got := make([]int, 0, 20)
	for i := 0; i < 20; i++ {
		i := i
		d.Submit("chat-1", func(context.Context) {
			if i%3 == 0 {
				time.Sleep(time.Millisecond)
			}
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	d.Wait()

	if len(got) != 20 {
		t.Fatalf("len(got) = %d, want 20", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, want %d (order %v)", i, v, i, got)
		}
	}
}

func TestSubmitRunsKeysInParallel(t *testing.T) {
	d := New(context.Background(), nil)

	release := make(chan struct{})
	started := make(chan string, 2)

	d.Submit("chat-a", func(context.Context) {
		started <- "a"
		<-release
	})
	d.Submit("chat-b", func(context.Context) {
		started <- "b"
		<-release
	})

	timeout := time.After(2 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-timeout:
			t.Fatal("expected both keys to start while the other is blocked")
		}
	}

	close(release)
	d.Wait()

	if got := d.Active(); got != 0 {
		t.Fatalf("Active() = %d, want 0 after drain", got)
	}
}

func TestSubmitRecoversPanickingJob(t *testing.T) {
	d := New(context.Background(), nil)

	ran := make(chan struct{}, 1)
	d.Submit("chat", func(context.Context) { panic("boom") })
	d.Submit("chat", func(context.Context) { ran <- struct{}{} })
	d.Wait()

	select {
	case <-ran:
	default:
		t.Fatal("expected job after panic to run")
	}
}

func TestCloseRejectsNewJobs(t *testing.T) {
	d := New(context.Background(), nil)
	d.Close()

	if d.Submit("chat", func(context.Context) {}) {
		t.Fatal("expected Submit to fail after Close")
	}
	if d.Submit("chat", nil) {
		t.Fatal("expected nil job to be rejected")
	}
}
