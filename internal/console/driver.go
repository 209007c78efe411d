// Package console is a line-oriented driver for a session: it prints deltas
// and turns typed commands into session actions.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/gokatarajesh/quiz-session/internal/channel"
	"github.com/gokatarajesh/quiz-session/internal/delta"
	"github.com/gokatarajesh/quiz-session/internal/leaderboard"
	"github.com/gokatarajesh/quiz-session/internal/matchmaking"
	"github.com/gokatarajesh/quiz-session/internal/session"
)

// ErrQuit is returned by Execute for the quit command.
var ErrQuit = errors.New("quit")

// Session is the subset of the orchestrator the driver calls.
type Session interface {
	MarkReady(ctx context.Context) error
	CancelReady(ctx context.Context) error
	SubmitAnswer(ctx context.Context, raw string) error
	JoinQueue(ctx context.Context) error
	CancelQueue(ctx context.Context) error
	ConfirmMatch(ctx context.Context) (string, error)
	ResetMatch(ctx context.Context) error
	JoinRoom(ctx context.Context, roomID string) (channel.RoomIdentity, error)
	CreateRoom(ctx context.Context, req channel.CreateRoomRequest) (channel.RoomIdentity, error)
	Leave(ctx context.Context) error
	RoomSummary(ctx context.Context) (channel.RoomSummary, error)
	Snapshot(ctx context.Context) (session.Snapshot, error)
}

// Board serves the ladder.
type Board interface {
	Top(ctx context.Context) ([]leaderboard.Entry, error)
}

type Options struct {
	Board Board
	// Connect opens a room stream after the authority binds us to a room.
	Connect func(ctx context.Context) error
}

type Driver struct {
	session Session
	board   Board
	connect func(ctx context.Context) error
	logger  zerolog.Logger

	mu  sync.Mutex
	out io.Writer
}

func New(s Session, out io.Writer, opts Options, logger zerolog.Logger) *Driver {
	return &Driver{
		session: s,
		board:   opts.Board,
		connect: opts.Connect,
		out:     out,
		logger:  logger.With().Str("component", "console").Logger(),
	}
}

func (d *Driver) printf(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, format+"\n", args...)
}

// Render prints one delta. It is used as the session's delta sink, so it
// must not call back into the session.
func (d *Driver) Render(dl delta.Delta) {
	switch dl.Kind {
	case delta.KindCountdown:
		d.printf("[%s] %d", dl.Slot, dl.Remaining)
	case delta.KindTicket:
		d.printf("[ticket] %s -> %s", dl.From, dl.To)
	case delta.KindError:
		d.printf("[error] %s", dl.Message)
	case delta.KindGameOver:
		if dl.Username == "" {
			d.printf("[game over]")
		} else {
			d.printf("[game over] winner %s", dl.Username)
		}
	case delta.KindRedirect:
		d.printf("[redirect] %s", dl.Message)
	case delta.KindNotice:
		d.printf("[notice] %s", dl.Message)
	default:
		if dl.Message != "" {
			d.printf("[%s] %s", dl.Kind, dl.Message)
		}
	}
}

// Run executes commands from in until EOF, quit or ctx ends.
func (d *Driver) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if err := d.Execute(ctx, line); err != nil {
				if errors.Is(err, ErrQuit) {
					return nil
				}
				d.logger.Debug().Err(err).Str("command", line).Msg("command failed")
				d.printf("error: %v", err)
			}
		}
	}
}

// Execute runs one command line.
func (d *Driver) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		d.printf("%s", usage)
		return nil
	case "quit", "exit":
		return ErrQuit
	case "ready":
		return d.session.MarkReady(ctx)
	case "unready", "cancel":
		return d.session.CancelReady(ctx)
	case "answer", "a":
		if len(args) != 1 {
			return errors.New("usage: answer <value>")
		}
		return d.session.SubmitAnswer(ctx, args[0])
	case "queue":
		return d.session.JoinQueue(ctx)
	case "cancelqueue":
		return d.session.CancelQueue(ctx)
	case "confirm":
		roomID, err := d.session.ConfirmMatch(ctx)
		if err != nil {
			return err
		}
		d.printf("matched into room %s", roomID)
		return d.enterRoom(ctx)
	case "reset":
		return d.session.ResetMatch(ctx)
	case "join":
		if len(args) != 1 {
			return errors.New("usage: join <room_id>")
		}
		id, err := d.session.JoinRoom(ctx, args[0])
		if err != nil {
			return err
		}
		d.printf("joined room %s", id.RoomID)
		return d.enterRoom(ctx)
	case "create":
		req, err := parseCreate(args)
		if err != nil {
			return err
		}
		id, err := d.session.CreateRoom(ctx, req)
		if err != nil {
			return err
		}
		d.printf("created room %s (%s)", id.RoomID, id.GameMode)
		return d.enterRoom(ctx)
	case "leave":
		return d.session.Leave(ctx)
	case "board":
		return d.printBoard(ctx)
	case "state", "snapshot":
		return d.printSnapshot(ctx)
	case "info":
		sum, err := d.session.RoomSummary(ctx)
		if err != nil {
			return err
		}
		d.printf("room %s mode=%s difficulty=%s questions=%d time=%ds players=%d ranked=%t",
			sum.RoomID, sum.GameMode, sum.Difficulty, sum.QuestionCount, int64(sum.GameTime), sum.PlayersCount, sum.IsRanked)
		return nil
	}
	return fmt.Errorf("unknown command %q (try help)", cmd)
}

func (d *Driver) enterRoom(ctx context.Context) error {
	if d.connect == nil {
		return nil
	}
	if err := d.connect(ctx); err != nil {
		return fmt.Errorf("connect room stream: %w", err)
	}
	return nil
}

// parseCreate reads: create <difficulty> <mode> <questions> <seconds> [room_id]
func parseCreate(args []string) (channel.CreateRoomRequest, error) {
	if len(args) < 4 || len(args) > 5 {
		return channel.CreateRoomRequest{}, errors.New("usage: create <difficulty> <mode> <questions> <seconds> [room_id]")
	}
	questions, err := strconv.Atoi(args[2])
	if err != nil {
		return channel.CreateRoomRequest{}, fmt.Errorf("questions: %w", err)
	}
	seconds, err := strconv.Atoi(args[3])
	if err != nil {
		return channel.CreateRoomRequest{}, fmt.Errorf("seconds: %w", err)
	}
	req := channel.CreateRoomRequest{
		Difficulty:       args[0],
		GameMode:         args[1],
		QuestionCount:    questions,
		TimeLimitSeconds: seconds,
	}
	if len(args) == 5 {
		req.RoomID = args[4]
	}
	return req, req.Validate()
}

func (d *Driver) printBoard(ctx context.Context) error {
	if d.board == nil {
		return errors.New("leaderboard unavailable")
	}
	entries, err := d.board.Top(ctx)
	if err != nil {
		return err
	}
	var b strings.Builder
	for _, e := range entries {
		marker := " "
		if e.Self {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s%3d  %-20s %5d\n", marker, e.Rank, e.Username, e.Rating)
	}
	d.printf("%s", strings.TrimRight(b.String(), "\n"))
	return nil
}

func (d *Driver) printSnapshot(ctx context.Context) error {
	snap, err := d.session.Snapshot(ctx)
	if err != nil {
		return err
	}
	var b strings.Builder
	r := snap.Room
	fmt.Fprintf(&b, "room %q mode=%s started=%t finished=%t attached=%t\n",
		r.RoomID, r.Mode, r.Started, r.Finished, snap.Attached)

	players := append(r.Players[:0:0], r.Players...)
	sort.SliceStable(players, func(i, j int) bool { return players[i].Score > players[j].Score })
	for _, p := range players {
		ready := ""
		if p.Ready {
			ready = " ready"
		}
		fmt.Fprintf(&b, "  %-20s score=%d rating=%d%s\n", p.Username, p.Score, p.Rating, ready)
	}
	fmt.Fprintf(&b, "lobby %s ready=%d/%d", snap.Lobby.Status, snap.Lobby.ReadyCount, snap.Lobby.TotalPlayers)
	if snap.Lobby.Countdown > 0 {
		fmt.Fprintf(&b, " countdown=%d", snap.Lobby.Countdown)
	}
	if q := snap.Round; q != nil {
		fmt.Fprintf(&b, "\nquestion %d/%d: inverse of %d mod %d, %ds left, phase=%s",
			q.QuestionNumber, q.TotalQuestions, q.A, q.P, q.Remaining, q.Phase)
	}
	if snap.Ticket.Status != "" && snap.Ticket.Status != matchmaking.StatusNone {
		fmt.Fprintf(&b, "\nticket %s elapsed=%ds", snap.Ticket.Status, snap.Ticket.ElapsedSeconds)
		if snap.Ticket.Opponent != "" {
			fmt.Fprintf(&b, " opponent=%s", snap.Ticket.Opponent)
		}
	}
	if snap.GameOver != nil {
		fmt.Fprintf(&b, "\ngame over, back to %s in %ds", session.RedirectTarget, snap.RedirectRemaining)
	}
	d.printf("%s", b.String())
	return nil
}

const usage = `commands:
  ready | unready             toggle readiness in the lobby
  answer <value>              submit the inverse for the current question
  queue | cancelqueue         join or leave the ranked queue
  confirm | reset             accept a match, or drop a stale one
  join <room_id>              join an existing room
  create <difficulty> <mode> <questions> <seconds> [room_id]
  leave                       leave the current room
  info                        show the current room's settings
  board                       show the ranked leaderboard
  state                       show the current session state
  quit`
