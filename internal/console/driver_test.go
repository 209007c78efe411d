package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/quiz-session/internal/channel"
	"github.com/gokatarajesh/quiz-session/internal/delta"
	"github.com/gokatarajesh/quiz-session/internal/leaderboard"
	"github.com/gokatarajesh/quiz-session/internal/matchmaking"
	"github.com/gokatarajesh/quiz-session/internal/room"
	"github.com/gokatarajesh/quiz-session/internal/session"
	"github.com/gokatarajesh/quiz-session/internal/timer"
)

type mockSession struct {
	mock.Mock
}

func (m *mockSession) MarkReady(ctx context.Context) error   { return m.Called().Error(0) }
func (m *mockSession) CancelReady(ctx context.Context) error { return m.Called().Error(0) }
func (m *mockSession) SubmitAnswer(ctx context.Context, raw string) error {
	return m.Called(raw).Error(0)
}
func (m *mockSession) JoinQueue(ctx context.Context) error   { return m.Called().Error(0) }
func (m *mockSession) CancelQueue(ctx context.Context) error { return m.Called().Error(0) }
func (m *mockSession) ConfirmMatch(ctx context.Context) (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}
func (m *mockSession) ResetMatch(ctx context.Context) error { return m.Called().Error(0) }
func (m *mockSession) JoinRoom(ctx context.Context, roomID string) (channel.RoomIdentity, error) {
	args := m.Called(roomID)
	return args.Get(0).(channel.RoomIdentity), args.Error(1)
}
func (m *mockSession) CreateRoom(ctx context.Context, req channel.CreateRoomRequest) (channel.RoomIdentity, error) {
	args := m.Called(req)
	return args.Get(0).(channel.RoomIdentity), args.Error(1)
}
func (m *mockSession) Leave(ctx context.Context) error { return m.Called().Error(0) }
func (m *mockSession) RoomSummary(ctx context.Context) (channel.RoomSummary, error) {
	args := m.Called()
	return args.Get(0).(channel.RoomSummary), args.Error(1)
}
func (m *mockSession) Snapshot(ctx context.Context) (session.Snapshot, error) {
	args := m.Called()
	return args.Get(0).(session.Snapshot), args.Error(1)
}

type stubBoard struct{ entries []leaderboard.Entry }

func (b stubBoard) Top(context.Context) ([]leaderboard.Entry, error) { return b.entries, nil }

func newDriver(s Session, opts Options) (*Driver, *bytes.Buffer) {
	var out bytes.Buffer
	return New(s, &out, opts, zerolog.Nop()), &out
}

func TestExecute_SimpleCommands(t *testing.T) {
	s := new(mockSession)
	s.On("MarkReady").Return(nil).Once()
	s.On("CancelReady").Return(nil).Once()
	s.On("SubmitAnswer", "42").Return(nil).Once()
	s.On("JoinQueue").Return(nil).Once()
	s.On("CancelQueue").Return(nil).Once()
	s.On("ResetMatch").Return(nil).Once()
	s.On("Leave").Return(nil).Once()
	d, _ := newDriver(s, Options{})

	ctx := context.Background()
	for _, line := range []string{"ready", "unready", "answer 42", "queue", "cancelqueue", "reset", "leave", "   "} {
		require.NoError(t, d.Execute(ctx, line), line)
	}
	s.AssertExpectations(t)
}

func TestExecute_Errors(t *testing.T) {
	s := new(mockSession)
	d, _ := newDriver(s, Options{})
	ctx := context.Background()

	assert.Error(t, d.Execute(ctx, "answer"))
	assert.Error(t, d.Execute(ctx, "join"))
	assert.Error(t, d.Execute(ctx, "dance"))
	assert.Error(t, d.Execute(ctx, "board"))
	assert.ErrorIs(t, d.Execute(ctx, "quit"), ErrQuit)
	s.AssertNotCalled(t, "SubmitAnswer", mock.Anything)
}

func TestExecute_JoinConnects(t *testing.T) {
	s := new(mockSession)
	s.On("JoinRoom", "ABC123").Return(channel.RoomIdentity{RoomID: "ABC123", GameMode: "first"}, nil)
	connects := 0
	d, out := newDriver(s, Options{Connect: func(context.Context) error {
		connects++
		return nil
	}})

	require.NoError(t, d.Execute(context.Background(), "join ABC123"))
	assert.Equal(t, 1, connects)
	assert.Contains(t, out.String(), "joined room ABC123")
}

func TestExecute_JoinFailureDoesNotConnect(t *testing.T) {
	s := new(mockSession)
	s.On("JoinRoom", "bad").Return(channel.RoomIdentity{}, errors.New("invalid room id"))
	d, _ := newDriver(s, Options{Connect: func(context.Context) error {
		t.Fatal("connect called")
		return nil
	}})

	assert.Error(t, d.Execute(context.Background(), "join bad"))
}

func TestExecute_ConfirmConnects(t *testing.T) {
	s := new(mockSession)
	s.On("ConfirmMatch").Return("R1", nil)
	boom := errors.New("dial refused")
	d, _ := newDriver(s, Options{Connect: func(context.Context) error { return boom }})

	err := d.Execute(context.Background(), "confirm")
	assert.ErrorIs(t, err, boom)
}

func TestExecute_Create(t *testing.T) {
	s := new(mockSession)
	want := channel.CreateRoomRequest{Difficulty: "easy", GameMode: "speed", QuestionCount: 5, TimeLimitSeconds: 20}
	s.On("CreateRoom", want).Return(channel.RoomIdentity{RoomID: "NEW1", GameMode: "speed"}, nil)
	d, out := newDriver(s, Options{})

	require.NoError(t, d.Execute(context.Background(), "create easy speed 5 20"))
	assert.Contains(t, out.String(), "created room NEW1 (speed)")

	assert.Error(t, d.Execute(context.Background(), "create easy speed five 20"))
	assert.Error(t, d.Execute(context.Background(), "create impossible speed 5 20"))
	s.AssertNumberOfCalls(t, "CreateRoom", 1)
}

func TestExecute_Board(t *testing.T) {
	d, out := newDriver(new(mockSession), Options{Board: stubBoard{entries: []leaderboard.Entry{
		{Rank: 1, Username: "alice", Rating: 1600},
		{Rank: 2, Username: "me", Rating: 1500, Self: true},
	}}})

	require.NoError(t, d.Execute(context.Background(), "board"))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "alice")
	assert.True(t, strings.HasPrefix(lines[1], "*"))
}

func TestExecute_Snapshot(t *testing.T) {
	s := new(mockSession)
	s.On("Snapshot").Return(session.Snapshot{
		Room: room.Snapshot{RoomID: "R1", Mode: room.ModeFirst, Players: []room.Player{
			{Username: "a", Score: 10},
			{Username: "b", Score: 20, Ready: true},
		}},
		Ticket:   matchmaking.Ticket{Status: matchmaking.StatusWaiting, ElapsedSeconds: 4},
		Attached: true,
	}, nil)
	d, out := newDriver(s, Options{})

	require.NoError(t, d.Execute(context.Background(), "state"))
	text := out.String()
	assert.Contains(t, text, `room "R1" mode=first`)
	assert.Less(t, strings.Index(text, "  b "), strings.Index(text, "  a "))
	assert.Contains(t, text, "ticket waiting elapsed=4s")
}

func TestExecute_Info(t *testing.T) {
	s := new(mockSession)
	s.On("RoomSummary").Return(channel.RoomSummary{
		RoomID: "R1", GameMode: "speed", Difficulty: "hard", GameTime: 20, QuestionCount: 8, PlayersCount: 3,
	}, nil).Once()
	d, out := newDriver(s, Options{})

	require.NoError(t, d.Execute(context.Background(), "info"))
	assert.Equal(t, "room R1 mode=speed difficulty=hard questions=8 time=20s players=3 ranked=false\n", out.String())
	s.AssertExpectations(t)
}

func TestRender(t *testing.T) {
	d, out := newDriver(new(mockSession), Options{})

	d.Render(delta.Delta{Kind: delta.KindCountdown, Slot: timer.SlotRound, Remaining: 7})
	d.Render(delta.Delta{Kind: delta.KindTicket, From: "none", To: "waiting"})
	d.Render(delta.Delta{Kind: delta.KindGameOver, Username: "alice"})
	d.Render(delta.Delta{Kind: delta.KindRoom})

	assert.Equal(t, "[round] 7\n[ticket] none -> waiting\n[game over] winner alice\n", out.String())
}

func TestRun_StopsOnQuit(t *testing.T) {
	s := new(mockSession)
	s.On("MarkReady").Return(nil).Once()
	d, out := newDriver(s, Options{})

	err := d.Run(context.Background(), strings.NewReader("ready\nnope\nquit\nready\n"))
	require.NoError(t, err)
	s.AssertExpectations(t)
	assert.Contains(t, out.String(), `unknown command "nope"`)
}
