package serialcomm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestConcurrentConnect_SingleOpen verifies racing Connect calls open the
// transport exactly once.
func TestConcurrentConnect_SingleOpen(t *testing.T) {
	mt := newMockTransport()
	a := New(mt, Config{})
	defer a.Disconnect()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Connect(context.Background()); err != nil && !errors.Is(err, ErrInvalidState) {
				t.Errorf("unexpected connect error: %v", err)
			}
		}()
	}
	wg.Wait()

	if opens, _ := mt.counts(); opens != 1 {
		t.Fatalf("expected 1 open, got %d", opens)
	}
	if !a.IsConnected() {
		t.Fatal("expected adapter to be connected")
	}
}

// TestConcurrentWrites_NoInterleaving checks each Write reaches the transport
// as one contiguous run.
func TestConcurrentWrites_NoInterleaving(t *testing.T) {
	mt := newMockTransport()
	a := connectedAdapter(t, mt)

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		msg := strings.Repeat(string(rune('a'+w)), 16) + "\n"
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				if err := a.Write(context.Background(), msg); err != nil {
					t.Errorf("write failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if err := a.Disconnect(); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(mt.writtenString(), "\n"), "\n")
	if len(lines) != writers*perWriter {
		t.Fatalf("expected %d lines, got %d", writers*perWriter, len(lines))
	}
	for _, line := range lines {
		if len(line) != 16 || strings.Count(line, line[:1]) != 16 {
			t.Fatalf("interleaved write: %q", line)
		}
	}
}

// TestDisconnectDuringWrites verifies writers racing a Disconnect either
// succeed in full or see ErrNotConnected.
func TestDisconnectDuringWrites(t *testing.T) {
	mt := newMockTransport()
	a := New(mt, Config{})
	if err := a.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	const msg = "PING\r\n"
	var (
		wg        sync.WaitGroup
		successes atomic.Int64
		started   = make(chan struct{})
		once      sync.Once
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				err := a.Write(context.Background(), msg)
				once.Do(func() { close(started) })
				if err == nil {
					successes.Add(1)
					continue
				}
				if !errors.Is(err, ErrNotConnected) {
					t.Errorf("unexpected write error: %v", err)
				}
				return
			}
		}()
	}

	<-started
	time.Sleep(5 * time.Millisecond)
	if err := a.Disconnect(); err != nil {
		t.Fatalf("disconnect failed: %v", err)
	}
	wg.Wait()

	if got, want := len(mt.writtenString()), int(successes.Load())*len(msg); got != want {
		t.Fatalf("expected %d bytes on the transport, got %d", want, got)
	}
}

// TestConnectDisconnectChurn exercises state transitions under contention.
func TestConnectDisconnectChurn(t *testing.T) {
	mt := newMockTransport()
	a := New(mt, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				err := a.Connect(context.Background())
				if err != nil && !errors.Is(err, ErrInvalidState) {
					t.Errorf("unexpected connect error: %v", err)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				err := a.Disconnect()
				if err != nil && !errors.Is(err, ErrInvalidState) {
					t.Errorf("unexpected disconnect error: %v", err)
				}
				_ = a.Write(context.Background(), "x")
			}
		}()
	}
	wg.Wait()

	if err := a.Disconnect(); err != nil {
		t.Fatalf("final disconnect failed: %v", err)
	}
	opens, closes := mt.counts()
	if opens != closes {
		t.Fatalf("opens (%d) != closes (%d)", opens, closes)
	}
	if a.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", a.State())
	}
}
