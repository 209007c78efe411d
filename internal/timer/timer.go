package timer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-session/internal/loop"
)

// Slot names a logical timer. At most one live handle exists per slot.
type Slot string

const (
	SlotRound          Slot = "round"
	SlotLobbyCountdown Slot = "lobby_countdown"
	SlotRankedStart    Slot = "ranked_start"
	SlotNextQuestion   Slot = "next_question"
	SlotRedirect       Slot = "redirect"
	SlotAutoReady      Slot = "auto_ready"
	SlotMatchPoll      Slot = "match_poll"
	SlotTicketClock    Slot = "ticket_clock"
)

// Scheduler is the timer surface the controllers depend on.
type Scheduler interface {
	Countdown(slot Slot, seconds int, onTick func(remaining int), onExpire func()) *Handle
	After(slot Slot, d time.Duration, fn func()) *Handle
	Every(slot Slot, d time.Duration, fn func()) *Handle
	Cancel(h *Handle)
	CancelSlot(slot Slot)
	Active(slot Slot) bool
	CancelAll()
}

// Handle is a cancellation token for one scheduled timer.
type Handle struct {
	slot Slot
	dead atomic.Bool
	stop chan struct{}
	once sync.Once
}

// NewHandle returns a live handle for slot.
func NewHandle(slot Slot) *Handle {
	return &Handle{slot: slot, stop: make(chan struct{})}
}

func (h *Handle) Slot() Slot { return h.slot }

// Live reports whether callbacks for this handle may still run.
func (h *Handle) Live() bool {
	return h != nil && !h.dead.Load()
}

// Stop makes the handle inert. Safe to call repeatedly.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.dead.Store(true)
		close(h.stop)
	})
}

// Done is closed when the handle is stopped or expires.
func (h *Handle) Done() <-chan struct{} {
	return h.stop
}

// Service schedules countdowns and one-shot or periodic callbacks. Clock
// goroutines only post; every callback runs on the dispatcher and re-checks
// its handle first, so a cancel issued on the loop wins over a tick already
// in flight.
type Service struct {
	clock    clockwork.Clock
	dispatch loop.Dispatcher
	logger   zerolog.Logger

	mu    sync.Mutex
	slots map[Slot]*Handle
}

var _ Scheduler = (*Service)(nil)

// NewService builds a timer service. A nil clock uses the real clock.
func NewService(clock clockwork.Clock, dispatch loop.Dispatcher, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		clock:    clock,
		dispatch: dispatch,
		logger:   logger.With().Str("component", "timer").Logger(),
		slots:    make(map[Slot]*Handle),
	}
}

// install atomically replaces the handle for slot, stopping any prior one.
func (s *Service) install(slot Slot) *Handle {
	h := NewHandle(slot)
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.slots[slot]; ok && existing.Live() {
		existing.Stop()
		s.logger.Debug().Str("slot", string(slot)).Msg("replaced live timer")
	}
	s.slots[slot] = h
	return h
}

func (s *Service) release(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slots[h.slot] == h {
		delete(s.slots, h.slot)
	}
}

// Countdown fires immediately and then once per second. Each fire either
// reports the remaining seconds and decrements, or, once nothing remains,
// stops the handle and calls onExpire exactly once.
func (s *Service) Countdown(slot Slot, seconds int, onTick func(remaining int), onExpire func()) *Handle {
	h := s.install(slot)
	remaining := seconds

	fire := func() {
		if !h.Live() {
			return
		}
		if remaining <= 0 {
			h.Stop()
			s.release(h)
			if onExpire != nil {
				onExpire()
			}
			return
		}
		if onTick != nil {
			onTick(remaining)
		}
		remaining--
	}

	ticker := s.clock.NewTicker(time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.Chan():
				s.dispatch.Post(fire)
			}
		}
	}()
	s.dispatch.Post(fire)
	return h
}

// After runs fn once after d unless cancelled first.
func (s *Service) After(slot Slot, d time.Duration, fn func()) *Handle {
	h := s.install(slot)
	t := s.clock.NewTimer(d)
	go func() {
		select {
		case <-h.stop:
			t.Stop()
		case <-t.Chan():
			s.dispatch.Post(func() {
				if !h.Live() {
					return
				}
				h.Stop()
				s.release(h)
				fn()
			})
		}
	}()
	return h
}

// Every runs fn at a fixed interval until cancelled. The first run is one
// interval after the call.
func (s *Service) Every(slot Slot, d time.Duration, fn func()) *Handle {
	h := s.install(slot)
	ticker := s.clock.NewTicker(d)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.Chan():
				s.dispatch.Post(func() {
					if h.Live() {
						fn()
					}
				})
			}
		}
	}()
	return h
}

// Cancel is idempotent and ignores nil or already expired handles.
func (s *Service) Cancel(h *Handle) {
	if h == nil {
		return
	}
	h.Stop()
	s.release(h)
}

func (s *Service) CancelSlot(slot Slot) {
	s.mu.Lock()
	h, ok := s.slots[slot]
	delete(s.slots, slot)
	s.mu.Unlock()
	if ok {
		h.Stop()
	}
}

func (s *Service) Active(slot Slot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[slot].Live()
}

// CancelAll stops every live handle.
func (s *Service) CancelAll() {
	s.mu.Lock()
	slots := s.slots
	s.slots = make(map[Slot]*Handle)
	s.mu.Unlock()

	for _, h := range slots {
		h.Stop()
	}
}
