package loop

import (
	"context"
	"sync"
)

// Inline is a deterministic Dispatcher for tests. Posted closures run on the
// posting goroutine; closures posted while another is running are queued and
// run after it returns, so callbacks never overlap.
//
// With HoldWork set, Go parks its work until RunHeld is called, which lets a
// test observe requests that are in flight.
type Inline struct {
	HoldWork bool

	mu      sync.Mutex
	queue   []func()
	running bool
	held    []func(ctx context.Context) func()
}

var _ Dispatcher = (*Inline)(nil)

func (d *Inline) Post(fn func()) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	for len(d.queue) > 0 {
		next := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()
		next()
		d.mu.Lock()
	}
	d.running = false
	d.mu.Unlock()
}

func (d *Inline) Go(work func(ctx context.Context) func()) {
	d.mu.Lock()
	if d.HoldWork {
		d.held = append(d.held, work)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	if cont := work(context.Background()); cont != nil {
		d.Post(cont)
	}
}

func (d *Inline) Call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	d.Post(func() {
		defer close(ran)
		fn()
	})
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Held reports how many Go calls are parked.
func (d *Inline) Held() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.held)
}

// RunHeld completes every parked Go call in submission order.
func (d *Inline) RunHeld() {
	d.mu.Lock()
	held := d.held
	d.held = nil
	d.mu.Unlock()

	for _, work := range held {
		if cont := work(context.Background()); cont != nil {
			d.Post(cont)
		}
	}
}
