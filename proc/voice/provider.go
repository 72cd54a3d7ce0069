package voice

import (
	"context"
	"io"
	"sync"
	"time"
)

const silenceWait = 100 * time.Millisecond

// pauseGate blocks frame delivery while a connection is paused.
type pauseGate struct {
	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
}

func newPauseGate() *pauseGate {
	g := &pauseGate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *pauseGate) set(paused bool) {
	g.mu.Lock()
	g.paused = paused
	g.cond.Broadcast()
	g.mu.Unlock()
}

func (g *pauseGate) isPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// wake releases waiters so they can notice a canceled context.
func (g *pauseGate) wake() {
	g.mu.Lock()
	g.cond.Broadcast()
	g.mu.Unlock()
}

// wait blocks while paused. It returns false once ctx is done.
func (g *pauseGate) wait(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.paused {
		if ctx.Err() != nil {
			return false
		}
		g.cond.Wait()
	}
	return ctx.Err() == nil
}

// frameProvider feeds opus frames from the encoder to the voice connection.
// A nil frame marks the end of the track.
type frameProvider struct {
	ctx    context.Context
	gate   *pauseGate
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func newFrameProvider(ctx context.Context, gate *pauseGate) *frameProvider {
	return &frameProvider{
		ctx:    ctx,
		gate:   gate,
		frames: make(chan []byte, 100),
		done:   make(chan struct{}),
	}
}

// push hands a frame to the connection. It reports false once the track is canceled.
func (p *frameProvider) push(f []byte) bool {
	select {
	case p.frames <- f:
		return true
	case <-p.ctx.Done():
		return false
	}
}

func (p *frameProvider) ProvideOpusFrame() ([]byte, error) {
	if !p.gate.wait(p.ctx) {
		p.Close()
		return nil, io.EOF
	}
	select {
	case f := <-p.frames:
		if f == nil {
			p.Close()
			return nil, io.EOF
		}
		return f, nil
	case <-p.ctx.Done():
		p.Close()
		return nil, io.EOF
	case <-time.After(silenceWait):
		return nil, nil
	}
}

func (p *frameProvider) Close() {
	p.once.Do(func() {
		close(p.done)
	})
}
