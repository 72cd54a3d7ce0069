package voice

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestFrameProviderDeliversFramesThenEOF(t *testing.T) {
	p := newFrameProvider(context.Background(), newPauseGate())
	go func() {
		p.push([]byte{1})
		p.push([]byte{2})
		p.push(nil)
	}()

	for _, want := range []byte{1, 2} {
		f, err := p.ProvideOpusFrame()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(f) != 1 || f[0] != want {
			t.Errorf("expected frame %d, got %v", want, f)
		}
	}
	if _, err := p.ProvideOpusFrame(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
	select {
	case <-p.done:
	default:
		t.Errorf("expected provider to be done after EOF")
	}
}

func TestFrameProviderSilence(t *testing.T) {
	p := newFrameProvider(context.Background(), newPauseGate())
	start := time.Now()
	f, err := p.ProvideOpusFrame()
	if f != nil || err != nil {
		t.Errorf("expected silence, got %v, %v", f, err)
	}
	if time.Since(start) < silenceWait {
		t.Errorf("expected to wait for a frame before reporting silence")
	}
}

func TestFrameProviderCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := newFrameProvider(ctx, newPauseGate())
	cancel()

	if _, err := p.ProvideOpusFrame(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFrameProviderPushRefusedWhenFullAndCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := newFrameProvider(ctx, newPauseGate())
	for i := 0; i < cap(p.frames); i++ {
		if !p.push([]byte{byte(i)}) {
			t.Fatalf("expected push %d to succeed", i)
		}
	}
	cancel()
	if p.push([]byte{0}) {
		t.Errorf("expected push on a full, canceled provider to fail")
	}
}

func TestPauseGateBlocksFrames(t *testing.T) {
	gate := newPauseGate()
	p := newFrameProvider(context.Background(), gate)
	gate.set(true)
	p.push([]byte{7})

	got := make(chan []byte, 1)
	go func() {
		f, _ := p.ProvideOpusFrame()
		got <- f
	}()

	select {
	case f := <-got:
		t.Fatalf("expected no frame while paused, got %v", f)
	case <-time.After(50 * time.Millisecond):
	}

	gate.set(false)
	select {
	case f := <-got:
		if len(f) != 1 || f[0] != 7 {
			t.Errorf("expected frame 7 after resume, got %v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected frame after resume")
	}
}

func TestPauseGateWakesOnCancel(t *testing.T) {
	gate := newPauseGate()
	gate.set(true)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() { done <- gate.wait(ctx) }()

	cancel()
	gate.wake()
	select {
	case ok := <-done:
		if ok {
			t.Errorf("expected wait to report cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected wait to return after cancel")
	}
}
