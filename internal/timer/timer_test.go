package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quiz-session/internal/loop"
)

type recorder struct {
	mu      sync.Mutex
	ticks   []int
	expires int
	fires   int
}

func (r *recorder) tick(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, n)
}

func (r *recorder) expire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expires++
}

func (r *recorder) fire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fires++
}

func (r *recorder) snapshot() ([]int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ticks...), r.expires, r.fires
}

func (r *recorder) tickCount() int {
	ticks, _, _ := r.snapshot()
	return len(ticks)
}

func newTestService() (*Service, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return NewService(clock, &loop.Inline{}, zerolog.Nop()), clock
}

// advance moves the fake clock one second and waits for cond.
func advance(t *testing.T, clock *clockwork.FakeClock, cond func() bool) {
	t.Helper()
	clock.Advance(time.Second)
	require.Eventually(t, cond, time.Second, time.Millisecond)
}

func TestCountdown_TicksThenExpiresOnce(t *testing.T) {
	svc, clock := newTestService()
	rec := &recorder{}

	h := svc.Countdown(SlotRound, 3, rec.tick, rec.expire)
	assert.True(t, svc.Active(SlotRound))
	assert.Equal(t, 1, rec.tickCount(), "first tick is immediate")

	advance(t, clock, func() bool { return rec.tickCount() == 2 })
	advance(t, clock, func() bool { return rec.tickCount() == 3 })
	advance(t, clock, func() bool { _, exp, _ := rec.snapshot(); return exp == 1 })

	ticks, expires, _ := rec.snapshot()
	assert.Equal(t, []int{3, 2, 1}, ticks)
	assert.Equal(t, 1, expires)
	assert.False(t, h.Live())
	assert.False(t, svc.Active(SlotRound))

	clock.Advance(time.Second)
	clock.Advance(time.Second)
	assert.Never(t, func() bool { _, exp, _ := rec.snapshot(); return exp > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestCountdown_ZeroExpiresImmediately(t *testing.T) {
	svc, _ := newTestService()
	rec := &recorder{}

	svc.Countdown(SlotLobbyCountdown, 0, rec.tick, rec.expire)

	ticks, expires, _ := rec.snapshot()
	assert.Empty(t, ticks)
	assert.Equal(t, 1, expires)
}

func TestCountdown_ReplaceCancelsPrevious(t *testing.T) {
	svc, clock := newTestService()
	first := &recorder{}
	second := &recorder{}

	h1 := svc.Countdown(SlotRound, 10, first.tick, first.expire)
	h2 := svc.Countdown(SlotRound, 2, second.tick, second.expire)

	assert.False(t, h1.Live())
	assert.True(t, h2.Live())

	advance(t, clock, func() bool { return second.tickCount() == 2 })
	advance(t, clock, func() bool { _, exp, _ := second.snapshot(); return exp == 1 })

	ticks, expires, _ := first.snapshot()
	assert.Equal(t, []int{10}, ticks)
	assert.Zero(t, expires)
}

func TestCancel_Idempotent(t *testing.T) {
	svc, clock := newTestService()
	rec := &recorder{}

	h := svc.Countdown(SlotRankedStart, 5, rec.tick, rec.expire)
	svc.Cancel(h)
	svc.Cancel(h)
	svc.Cancel(nil)
	svc.CancelSlot(SlotRankedStart)

	assert.False(t, svc.Active(SlotRankedStart))
	clock.Advance(time.Second)
	assert.Never(t, func() bool { return rec.tickCount() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	_, expires, _ := rec.snapshot()
	assert.Zero(t, expires)
}

func TestCancel_AfterExpiryIsNoop(t *testing.T) {
	svc, _ := newTestService()
	rec := &recorder{}

	h := svc.Countdown(SlotRedirect, 0, nil, rec.expire)
	svc.Cancel(h)

	_, expires, _ := rec.snapshot()
	assert.Equal(t, 1, expires)
}

func TestAfter_FiresOnce(t *testing.T) {
	svc, clock := newTestService()
	rec := &recorder{}

	svc.After(SlotAutoReady, 2*time.Second, rec.fire)
	clock.Advance(time.Second)
	_, _, fires := rec.snapshot()
	assert.Zero(t, fires)

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { _, _, f := rec.snapshot(); return f == 1 }, time.Second, time.Millisecond)
	assert.False(t, svc.Active(SlotAutoReady))
}

func TestAfter_CancelledBeforeFiring(t *testing.T) {
	svc, clock := newTestService()
	rec := &recorder{}

	svc.After(SlotAutoReady, time.Second, rec.fire)
	svc.CancelSlot(SlotAutoReady)
	clock.Advance(2 * time.Second)

	assert.Never(t, func() bool { _, _, f := rec.snapshot(); return f > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestEvery_RepeatsUntilCancelled(t *testing.T) {
	svc, clock := newTestService()
	rec := &recorder{}

	svc.Every(SlotMatchPoll, 2*time.Second, rec.fire)
	for i := 1; i <= 3; i++ {
		clock.Advance(2 * time.Second)
		want := i
		require.Eventually(t, func() bool { _, _, f := rec.snapshot(); return f == want }, time.Second, time.Millisecond)
	}

	svc.CancelAll()
	assert.False(t, svc.Active(SlotMatchPoll))
	clock.Advance(2 * time.Second)
	assert.Never(t, func() bool { _, _, f := rec.snapshot(); return f > 3 }, 50*time.Millisecond, 5*time.Millisecond)
}
