package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/gokatarajesh/quiz-session/internal/metrics"
	"github.com/gokatarajesh/quiz-session/internal/room"
	httperrors "github.com/gokatarajesh/quiz-session/pkg/http/errors"
)

const (
	defaultTimeout  = 8 * time.Second
	maxResponseSize = 1 << 20
)

// APIOptions configures the request/response client.
type APIOptions struct {
	BaseURL     string
	Timeout     time.Duration
	AccessToken string
	Jar         http.CookieJar
	// HTTPClient overrides the client built from the other options.
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

// API issues request/response calls to the authority. The cookie jar is
// shared with the event stream so both paths carry the same session.
type API struct {
	base    *url.URL
	client  *http.Client
	jar     http.CookieJar
	token   string
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewAPI validates the base URL and builds the HTTP client.
func NewAPI(opts APIOptions, logger zerolog.Logger) (*API, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", opts.BaseURL)
	}

	jar := opts.Jar
	if jar == nil {
		if jar, err = cookiejar.New(nil); err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout, Jar: jar}
		if opts.AccessToken != "" {
			ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
			client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: opts.AccessToken,
				TokenType:   "Bearer",
			}))
			client.Timeout = timeout
			client.Jar = jar
		}
	}

	return &API{
		base:    base,
		client:  client,
		jar:     jar,
		token:   opts.AccessToken,
		metrics: opts.Metrics,
		logger:  logger.With().Str("component", "session_api").Logger(),
	}, nil
}

// Jar returns the cookie jar shared with the event stream.
func (a *API) Jar() http.CookieJar {
	return a.jar
}

// AuthHeader returns the headers the event stream handshake should carry.
func (a *API) AuthHeader() http.Header {
	h := http.Header{}
	if a.token != "" {
		h.Set("Authorization", "Bearer "+a.token)
	}
	return h
}

// StreamURL derives the WebSocket endpoint from the base URL.
func (a *API) StreamURL(path string) string {
	u := *a.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String()
}

func (a *API) endpoint(path string) string {
	u := *a.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// do performs one call. Transport failures and 5xx responses are transient;
// an {"error": ...} body, which the authority also sends with status 200, is
// a rejection.
func (a *API) do(ctx context.Context, method, path string, form url.Values, out any) (err error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordAPICall(strings.TrimPrefix(path, "/"), err == nil, time.Since(start))
	}()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, a.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return httperrors.Transient(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return httperrors.Transient(fmt.Errorf("read %s: %w", path, err))
	}
	a.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("authority call")

	if resp.StatusCode >= http.StatusMultipleChoices {
		return httperrors.FromResponse(resp.StatusCode, raw)
	}

	var envelope httperrors.ErrorResponse
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != "" {
		return httperrors.Rejected(envelope.Error)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &httperrors.Error{
			Code:    httperrors.ErrCodeInvalidPayload,
			Message: fmt.Sprintf("decode %s response: %v", path, err),
			Err:     err,
		}
	}
	return nil
}

// RoomIdentity is get-room-identity.
func (a *API) RoomIdentity(ctx context.Context) (RoomIdentity, error) {
	var out RoomIdentity
	err := a.do(ctx, http.MethodGet, "/get_room_id", nil, &out)
	return out, err
}

// RoomSummary is get-room-summary.
func (a *API) RoomSummary(ctx context.Context) (RoomSummary, error) {
	var out RoomSummary
	err := a.do(ctx, http.MethodGet, "/get_room_info", nil, &out)
	return out, err
}

// RoomDetails is get-room-details.
func (a *API) RoomDetails(ctx context.Context) (RoomDetails, error) {
	var out RoomDetails
	err := a.do(ctx, http.MethodGet, "/get_room_details", nil, &out)
	return out, err
}

// LeaveRoom is leave-room.
func (a *API) LeaveRoom(ctx context.Context) error {
	return a.do(ctx, http.MethodPost, "/leave_room", url.Values{}, nil)
}

// Validate checks the form locally before anything is sent.
func (r CreateRoomRequest) Validate() error {
	if r.RoomID != "" {
		if err := room.ValidateID(r.RoomID); err != nil {
			return err
		}
	}
	if !difficulties[r.Difficulty] {
		return &httperrors.ValidationError{Field: "difficulty", Message: "difficulty must be easy, medium or hard"}
	}
	if _, ok := room.ParseMode(r.GameMode); !ok {
		return &httperrors.ValidationError{Field: "game_mode", Message: "game mode must be practice, first, speed or ranked"}
	}
	if r.QuestionCount <= 0 {
		return &httperrors.ValidationError{Field: "question_count", Message: "question count must be positive"}
	}
	if r.TimeLimitSeconds <= 0 {
		return &httperrors.ValidationError{Field: "game_time", Message: "time limit must be positive"}
	}
	return nil
}

// CreateRoom is create-room.
func (a *API) CreateRoom(ctx context.Context, req CreateRoomRequest) (RoomIdentity, error) {
	if err := req.Validate(); err != nil {
		return RoomIdentity{}, err
	}
	form := url.Values{
		"difficulty":     {req.Difficulty},
		"game_mode":      {req.GameMode},
		"game_time":      {strconv.Itoa(req.TimeLimitSeconds)},
		"question_count": {strconv.Itoa(req.QuestionCount)},
	}
	if req.RoomID != "" {
		form.Set("room_id", req.RoomID)
	}
	var out RoomIdentity
	err := a.do(ctx, http.MethodPost, "/create_room", form, &out)
	return out, err
}

// JoinRoom is join-room. The id is validated before any request is made.
func (a *API) JoinRoom(ctx context.Context, roomID string) (RoomIdentity, error) {
	if err := room.ValidateID(roomID); err != nil {
		return RoomIdentity{}, err
	}
	var out RoomIdentity
	err := a.do(ctx, http.MethodPost, "/join_room", url.Values{"room_id": {roomID}}, &out)
	return out, err
}

func (a *API) matchCall(ctx context.Context, path string) (MatchStatus, error) {
	var out MatchStatus
	err := a.do(ctx, http.MethodPost, path, url.Values{}, &out)
	return out, err
}

// JoinRankedQueue is join-ranked-queue.
func (a *API) JoinRankedQueue(ctx context.Context) (MatchStatus, error) {
	return a.matchCall(ctx, "/join_ranked_queue")
}

// CheckMatchStatus is check-match-status.
func (a *API) CheckMatchStatus(ctx context.Context) (MatchStatus, error) {
	return a.matchCall(ctx, "/check_match_status")
}

// CancelRankedQueue is cancel-ranked-queue.
func (a *API) CancelRankedQueue(ctx context.Context) error {
	_, err := a.matchCall(ctx, "/cancel_ranked_queue")
	return err
}

// ConfirmRankedMatch is confirm-ranked-match.
func (a *API) ConfirmRankedMatch(ctx context.Context) error {
	_, err := a.matchCall(ctx, "/confirm_ranked_match")
	return err
}

// ResetRankedMatch is reset-ranked-match.
func (a *API) ResetRankedMatch(ctx context.Context) error {
	_, err := a.matchCall(ctx, "/reset_ranked_match")
	return err
}

// Leaderboard is get-leaderboard.
func (a *API) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	var out leaderboardResponse
	if err := a.do(ctx, http.MethodGet, "/api/leaderboard", nil, &out); err != nil {
		return nil, err
	}
	return out.Players, nil
}
