package events

import (
	"context"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/logging"
)

func TestRingBuffer_Log(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Log(Event{Type: "Triggered", Contract: "solver"})

	if rb.Count() != 1 {
		t.Errorf("Count() = %d, want 1", rb.Count())
	}
	recent := rb.Recent(1)
	if len(recent) != 1 {
		t.Fatalf("Recent(1) len = %d, want 1", len(recent))
	}
	if recent[0].ID == "" {
		t.Error("ID should be auto-generated")
	}
	if recent[0].Timestamp.IsZero() {
		t.Error("Timestamp should be auto-set")
	}
	if recent[0].Severity != SeverityInfo {
		t.Errorf("Severity = %q, want info", recent[0].Severity)
	}
	if recent[0].Seq != 1 {
		t.Errorf("Seq = %d, want 1", recent[0].Seq)
	}
}

func TestRingBuffer_Overflow(t *testing.T) {
	rb := NewRingBuffer(5)
	for i := 0; i < 10; i++ {
		rb.Log(Event{Type: "Received", Method: string(rune('A' + i))})
	}

	if rb.Count() != 5 {
		t.Errorf("Count() = %d, want 5", rb.Count())
	}
	recent := rb.Recent(5)
	if len(recent) != 5 {
		t.Fatalf("Recent(5) len = %d, want 5", len(recent))
	}
	if recent[0].Method != "J" {
		t.Errorf("newest = %q, want J", recent[0].Method)
	}
	if recent[4].Method != "F" {
		t.Errorf("oldest = %q, want F", recent[4].Method)
	}
}

func TestRingBuffer_Filters(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Log(Event{Type: "Triggered", Contract: "a"})
	rb.Log(Event{Type: "Executed", Contract: "a"})
	rb.Log(Event{Type: "Transfer", Contract: "b"})

	if got := rb.RecentByContract("a", 10); len(got) != 2 {
		t.Errorf("RecentByContract(a) len = %d, want 2", len(got))
	}
	if got := rb.RecentByType("Transfer", 10); len(got) != 1 || got[0].Contract != "b" {
		t.Errorf("RecentByType(Transfer) = %v", got)
	}
	if got := rb.Recent(0); got != nil {
		t.Errorf("Recent(0) = %v, want nil", got)
	}
}

func TestRingBuffer_Since(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Log(Event{Type: "Received"})
	}

	got := rb.Since(3)
	if len(got) != 2 {
		t.Fatalf("Since(3) len = %d, want 2", len(got))
	}
	if got[0].Seq != 4 || got[1].Seq != 5 {
		t.Errorf("Since(3) seqs = %d,%d, want 4,5", got[0].Seq, got[1].Seq)
	}
	if got := rb.Since(0); len(got) != 3 {
		t.Errorf("Since(0) len = %d, want 3 (buffer size)", len(got))
	}

	rb.Clear()
	if rb.Count() != 0 {
		t.Errorf("Count() after Clear = %d", rb.Count())
	}
	rb.Log(Event{Type: "Received"})
	if got := rb.Recent(1); got[0].Seq != 6 {
		t.Errorf("Seq after Clear = %d, want 6", got[0].Seq)
	}
}

func TestRingBuffer_Subscribe(t *testing.T) {
	rb := NewRingBuffer(10)
	var all, faults int32

	unsubscribe := rb.Subscribe(func(Event) { atomic.AddInt32(&all, 1) })
	rb.SubscribeFiltered(func(e Event) bool { return e.Type == EventFault }, func(Event) {
		atomic.AddInt32(&faults, 1)
	})

	rb.Log(Event{Type: "Triggered"})
	rb.Log(Event{Type: EventFault})
	unsubscribe()
	rb.Log(Event{Type: EventFault})

	if atomic.LoadInt32(&all) != 2 {
		t.Errorf("all handler called %d times, want 2", all)
	}
	if atomic.LoadInt32(&faults) != 2 {
		t.Errorf("fault handler called %d times, want 2", faults)
	}
}

func TestRingBuffer_ConcurrentDeliveryIsOrdered(t *testing.T) {
	rb := NewRingBuffer(1000)
	var mu sync.Mutex
	var seqs []uint64
	rb.Subscribe(func(e Event) {
		mu.Lock()
		seqs = append(seqs, e.Seq)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				rb.Log(Event{Type: "Triggered"})
			}
		}()
	}
	wg.Wait()

	if len(seqs) != 400 {
		t.Fatalf("delivered %d events, want 400", len(seqs))
	}
	for i, seq := range seqs {
		if seq != uint64(i+1) {
			t.Fatalf("event %d delivered with seq %d, want %d", i, seq, i+1)
		}
	}
}

func TestRingBuffer_LogWithContext(t *testing.T) {
	rb := NewRingBuffer(10)
	ctx := logging.WithTraceID(context.Background(), "trace-1")
	rb.LogWithContext(ctx, Event{Type: "Triggered"})

	if got := rb.Recent(1)[0].TraceID; got != "trace-1" {
		t.Errorf("TraceID = %q, want trace-1", got)
	}
}

func TestAttach(t *testing.T) {
	host := chain.NewHost(logging.NewDiscard("host"))
	rb := NewRingBuffer(10)
	detach := rb.Attach(host)

	minter := chain.ScriptHash([]byte("minter"))
	token := chain.NewToken(chain.TokenConfig{Symbol: "USDX", Minter: minter})
	if _, err := host.Deploy(context.Background(), minter, token); err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	_, err := host.Invoke(context.Background(), minter, chain.Call{
		To:     token.Hash(),
		Method: chain.TokenMethodMint,
		Args:   []any{minter, big.NewInt(5)},
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, _ = host.Invoke(context.Background(), minter, chain.Call{To: token.Hash(), Method: "burn"})

	recent := rb.Recent(10)
	if len(recent) != 2 {
		t.Fatalf("Recent len = %d, want 2", len(recent))
	}
	if recent[0].Type != EventFault || recent[0].Error == "" {
		t.Errorf("newest event = %+v, want fault with error", recent[0])
	}
	if recent[1].Type != "Transfer" || recent[1].Fields["amount"] != "5" {
		t.Errorf("mint event = %+v", recent[1])
	}
	if recent[1].Contract != chain.FormatAddress(token.Hash()) {
		t.Errorf("Contract = %q", recent[1].Contract)
	}

	detach()
	_, _ = host.Invoke(context.Background(), minter, chain.Call{To: token.Hash(), Method: "burn"})
	if rb.Count() != 2 {
		t.Errorf("Count() after detach = %d, want 2", rb.Count())
	}
}
