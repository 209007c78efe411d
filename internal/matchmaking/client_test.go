package matchmaking

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quiz-session/internal/channel"
	"github.com/gokatarajesh/quiz-session/internal/delta"
	"github.com/gokatarajesh/quiz-session/internal/loop"
	"github.com/gokatarajesh/quiz-session/internal/metrics"
	"github.com/gokatarajesh/quiz-session/internal/timer"
	"github.com/gokatarajesh/quiz-session/internal/timer/timertest"
	httperrors "github.com/gokatarajesh/quiz-session/pkg/http/errors"
)

type reply struct {
	status channel.MatchStatus
	err    error
}

type fakeAPI struct {
	join    reply
	checks  []reply
	nChecks int
	cancels int
	confirm int
	resets  int
	callErr error
}

func (f *fakeAPI) JoinRankedQueue(context.Context) (channel.MatchStatus, error) {
	return f.join.status, f.join.err
}

func (f *fakeAPI) CheckMatchStatus(context.Context) (channel.MatchStatus, error) {
	f.nChecks++
	if len(f.checks) == 0 {
		return channel.MatchStatus{Status: channel.MatchWaiting}, nil
	}
	r := f.checks[0]
	f.checks = f.checks[1:]
	return r.status, r.err
}

func (f *fakeAPI) CancelRankedQueue(context.Context) error {
	f.cancels++
	return f.callErr
}

func (f *fakeAPI) ConfirmRankedMatch(context.Context) error {
	f.confirm++
	return f.callErr
}

func (f *fakeAPI) ResetRankedMatch(context.Context) error {
	f.resets++
	return f.callErr
}

type fixture struct {
	client   *Client
	api      *fakeAPI
	dispatch *loop.Inline
	timers   *timertest.Manual
	deltas   *delta.Recorder
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		api:      &fakeAPI{join: reply{status: channel.MatchStatus{Status: channel.MatchWaiting}}},
		dispatch: &loop.Inline{HoldWork: true},
		timers:   timertest.New(),
		deltas:   &delta.Recorder{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	f.client = NewClient(f.api, f.dispatch, f.timers, f.deltas.Sink(), f.metrics,
		Options{PollInterval: 3 * time.Second, StaleAfter: 3 * time.Second}, zerolog.Nop())
	return f
}

// post runs fn the way the session does, on the dispatcher.
func (f *fixture) post(fn func()) {
	f.dispatch.Post(fn)
}

func (f *fixture) joinWaiting(t *testing.T) {
	t.Helper()
	f.post(func() { require.NoError(t, f.client.JoinQueue()) })
	f.dispatch.RunHeld()
	require.Equal(t, StatusWaiting, f.client.Ticket().Status)
	require.True(t, f.timers.Active(timer.SlotMatchPoll))
}

func (f *fixture) pollOnce(r reply) {
	f.api.checks = append(f.api.checks, r)
	f.timers.Fire(timer.SlotMatchPoll)
	f.dispatch.RunHeld()
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusNone, StatusWaiting, true},
		{StatusWaiting, StatusMatched, true},
		{StatusWaiting, StatusNone, true},
		{StatusMatched, StatusNone, true},
		{StatusNone, StatusMatched, false},
		{StatusMatched, StatusWaiting, false},
		{StatusNone, StatusNone, false},
		{StatusWaiting, StatusWaiting, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestJoinThenPollMatched(t *testing.T) {
	f := newFixture(t)

	f.post(func() { require.NoError(t, f.client.JoinQueue()) })
	assert.Equal(t, StatusWaiting, f.client.Ticket().Status, "optimistic")
	assert.Equal(t, 1, f.dispatch.Held())
	assert.False(t, f.timers.Active(timer.SlotMatchPoll), "no polling before the join is confirmed")

	f.dispatch.RunHeld()
	require.True(t, f.timers.Active(timer.SlotMatchPoll))
	assert.Equal(t, 3*time.Second, f.timers.Interval(timer.SlotMatchPoll))

	f.deltas.Reset()
	f.pollOnce(reply{status: channel.MatchStatus{
		Status:        channel.MatchMatched,
		Opponent:      "alice",
		Difficulty:    "medium",
		QuestionCount: 7,
		RoomID:        "R42",
	}})

	tk := f.client.Ticket()
	assert.Equal(t, StatusMatched, tk.Status)
	assert.Equal(t, "alice", tk.Opponent)
	assert.Equal(t, "medium", tk.Difficulty)
	assert.Equal(t, 7, tk.QuestionCount)
	assert.False(t, f.timers.Active(timer.SlotMatchPoll), "polling stops")

	transitions := f.deltas.Of(delta.KindTicket)
	require.Len(t, transitions, 1)
	assert.Equal(t, "waiting", transitions[0].From)
	assert.Equal(t, "matched", transitions[0].To)
}

func TestJoinWhileWaitingDoesNotStartSecondLoop(t *testing.T) {
	f := newFixture(t)
	f.joinWaiting(t)

	f.post(func() { require.NoError(t, f.client.JoinQueue()) })
	assert.Zero(t, f.dispatch.Held(), "no second join request")
	assert.Equal(t, 1, f.timers.Starts(timer.SlotMatchPoll))
}

func TestJoinMatchedImmediatelySkipsPolling(t *testing.T) {
	f := newFixture(t)
	f.api.join = reply{status: channel.MatchStatus{Status: channel.MatchMatched, Opponent: "bob", RoomID: "R1"}}

	f.post(func() { require.NoError(t, f.client.JoinQueue()) })
	f.dispatch.RunHeld()

	assert.Equal(t, StatusMatched, f.client.Ticket().Status)
	assert.Zero(t, f.timers.Starts(timer.SlotMatchPoll))
}

func TestJoinFailureReverts(t *testing.T) {
	f := newFixture(t)
	f.api.join = reply{err: httperrors.Rejected("already in a room")}

	f.post(func() { require.NoError(t, f.client.JoinQueue()) })
	f.dispatch.RunHeld()

	assert.Equal(t, StatusNone, f.client.Ticket().Status)
	errs := f.deltas.Of(delta.KindError)
	require.Len(t, errs, 1)
	assert.Equal(t, httperrors.ErrCodeRejected, httperrors.Code(errs[0].Err))
}

func TestAtMostOnePollInFlight(t *testing.T) {
	f := newFixture(t)
	f.joinWaiting(t)

	f.timers.Fire(timer.SlotMatchPoll)
	f.timers.Fire(timer.SlotMatchPoll)
	assert.Equal(t, 1, f.dispatch.Held())

	f.dispatch.RunHeld()
	assert.Equal(t, 1, f.api.nChecks)

	f.timers.Fire(timer.SlotMatchPoll)
	assert.Equal(t, 1, f.dispatch.Held(), "next tick polls again once the previous response landed")
}

func TestTransientPollErrorIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.joinWaiting(t)
	f.deltas.Reset()

	f.pollOnce(reply{err: httperrors.Transient(errors.New("connection reset"))})

	assert.Equal(t, StatusWaiting, f.client.Ticket().Status)
	assert.True(t, f.timers.Active(timer.SlotMatchPoll))
	assert.Empty(t, f.deltas.Of(delta.KindError))
	assert.Empty(t, f.deltas.Of(delta.KindTicket))

	f.pollOnce(reply{status: channel.MatchStatus{Status: channel.MatchMatched}})
	assert.Equal(t, StatusMatched, f.client.Ticket().Status)
}

func TestNotInQueueIsQueueLost(t *testing.T) {
	f := newFixture(t)
	f.joinWaiting(t)

	f.pollOnce(reply{status: channel.MatchStatus{Status: channel.MatchNotInQueue}})

	assert.Equal(t, StatusNone, f.client.Ticket().Status)
	assert.False(t, f.timers.Active(timer.SlotMatchPoll))
	errs := f.deltas.Of(delta.KindError)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0].Err, httperrors.ErrQueueLost)
}

func TestCanceledElsewhereEndsWait(t *testing.T) {
	f := newFixture(t)
	f.joinWaiting(t)

	f.pollOnce(reply{status: channel.MatchStatus{Status: channel.MatchCanceled}})

	assert.Equal(t, StatusNone, f.client.Ticket().Status)
	assert.False(t, f.timers.Active(timer.SlotMatchPoll))
	assert.Empty(t, f.deltas.Of(delta.KindError))
	notices := f.deltas.Of(delta.KindNotice)
	require.Len(t, notices, 1)
	assert.Equal(t, "ranked queue canceled", notices[0].Message)
}

func TestRefusedResponseTransitionIsLogged(t *testing.T) {
	f := newFixture(t)
	var logs bytes.Buffer
	f.client.logger = zerolog.New(&logs)

	// a matched answer with no ticket open cannot move the ticket
	f.client.matched(channel.MatchStatus{Status: channel.MatchMatched, RoomID: "R9"})

	assert.Equal(t, StatusNone, f.client.Ticket().Status)
	assert.Empty(t, f.deltas.Of(delta.KindTicket))
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), "ticket transition refused")
	assert.Contains(t, logs.String(), `"reason":"matched"`)
}

func TestCancelQueue(t *testing.T) {
	f := newFixture(t)

	f.post(func() {
		assert.ErrorIs(t, f.client.CancelQueue(), httperrors.ErrInvalidTransition)
	})

	f.joinWaiting(t)
	f.timers.Fire(timer.SlotMatchPoll)
	require.Equal(t, 1, f.dispatch.Held())

	f.api.callErr = httperrors.Transient(errors.New("timeout"))
	f.api.checks = []reply{{status: channel.MatchStatus{Status: channel.MatchMatched}}}
	f.post(func() { require.NoError(t, f.client.CancelQueue()) })
	assert.Equal(t, StatusNone, f.client.Ticket().Status, "reverts before the authority answers")
	assert.False(t, f.timers.Active(timer.SlotMatchPoll))

	// the in-flight poll lands after the cancel and must be discarded
	f.dispatch.RunHeld()
	assert.Equal(t, StatusNone, f.client.Ticket().Status)
	assert.Equal(t, 1, f.api.cancels)
}

func TestConfirmMatchReturnsRoom(t *testing.T) {
	f := newFixture(t)
	f.joinWaiting(t)

	f.post(func() {
		_, err := f.client.ConfirmMatch()
		assert.ErrorIs(t, err, httperrors.ErrInvalidTransition)
	})

	f.pollOnce(reply{status: channel.MatchStatus{Status: channel.MatchMatched, RoomID: "R42"}})
	require.True(t, f.timers.Active(timer.SlotTicketClock))

	var roomID string
	f.post(func() {
		var err error
		roomID, err = f.client.ConfirmMatch()
		require.NoError(t, err)
	})
	f.dispatch.RunHeld()

	assert.Equal(t, "R42", roomID)
	assert.Equal(t, StatusNone, f.client.Ticket().Status)
	assert.False(t, f.timers.Active(timer.SlotTicketClock))
	assert.Equal(t, 1, f.api.confirm)
}

func TestResetOnlyOnceStale(t *testing.T) {
	f := newFixture(t)
	f.joinWaiting(t)
	f.pollOnce(reply{status: channel.MatchStatus{Status: channel.MatchMatched}})

	f.post(func() {
		err := f.client.ResetMatch()
		assert.Equal(t, httperrors.ErrCodeInvalidTransition, httperrors.Code(err))
	})
	assert.Equal(t, StatusMatched, f.client.Ticket().Status)

	for i := 0; i < 5; i++ {
		f.timers.Fire(timer.SlotTicketClock)
	}
	tk := f.client.Ticket()
	assert.Equal(t, 5, tk.ElapsedSeconds)
	assert.True(t, tk.StaleOffered)

	notices := f.deltas.Of(delta.KindNotice)
	require.Len(t, notices, 1, "staleness is announced once")
	assert.ErrorIs(t, notices[0].Err, httperrors.ErrStaleTicket)

	f.post(func() { require.NoError(t, f.client.ResetMatch()) })
	f.dispatch.RunHeld()
	assert.Equal(t, StatusNone, f.client.Ticket().Status)
	assert.Equal(t, 1, f.api.resets)
}

func TestStopDiscardsOutstandingResponses(t *testing.T) {
	f := newFixture(t)
	f.joinWaiting(t)
	f.timers.Fire(timer.SlotMatchPoll)

	f.post(f.client.Stop)
	f.api.checks = []reply{{status: channel.MatchStatus{Status: channel.MatchMatched}}}
	f.dispatch.RunHeld()

	assert.Equal(t, StatusWaiting, f.client.Ticket().Status)
	assert.False(t, f.timers.Active(timer.SlotMatchPoll))
	assert.False(t, f.timers.Active(timer.SlotTicketClock))
}
