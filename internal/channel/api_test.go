package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httperrors "github.com/gokatarajesh/quiz-session/pkg/http/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newTestAPI(t *testing.T, handler http.Handler, token string) (*API, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	api, err := NewAPI(APIOptions{BaseURL: srv.URL, AccessToken: token}, zerolog.Nop())
	require.NoError(t, err)
	return api, srv
}

func TestNewAPI_RejectsBadURL(t *testing.T) {
	_, err := NewAPI(APIOptions{BaseURL: "ftp://example.com"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestStreamURL(t *testing.T) {
	api, err := NewAPI(APIOptions{BaseURL: "https://quiz.example.com/app/"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "wss://quiz.example.com/app/ws", api.StreamURL("/ws"))

	api, err = NewAPI(APIOptions{BaseURL: "http://localhost:5000"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:5000/socket.io", api.StreamURL("socket.io"))
}

func TestJoinRoom_ValidatesBeforeRequest(t *testing.T) {
	var hits int32
	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}), "")

	_, err := api.JoinRoom(context.Background(), "ab-12")
	require.Error(t, err)
	assert.True(t, httperrors.IsValidation(err))

	_, err = api.JoinRoom(context.Background(), "")
	assert.True(t, httperrors.IsValidation(err))
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestJoinRoom_PostsForm(t *testing.T) {
	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/join_room", r.URL.Path)
		require.NoError(t, r.ParseForm())
		writeJSON(w, http.StatusOK, map[string]string{"room_id": r.PostForm.Get("room_id")})
	}), "")

	id, err := api.JoinRoom(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", id.RoomID)
}

func TestErrorBodyWithStatusOKIsRejection(t *testing.T) {
	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"error": "room is full"})
	}), "")

	_, err := api.JoinRoom(context.Background(), "ABC123")
	require.Error(t, err)
	assert.Equal(t, httperrors.ErrCodeRejected, httperrors.Code(err))
	assert.Equal(t, "room is full", err.Error())
}

func TestServerErrorIsTransient(t *testing.T) {
	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}), "")

	_, err := api.CheckMatchStatus(context.Background())
	assert.True(t, httperrors.IsTransient(err))
}

func TestTransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	api, err := NewAPI(APIOptions{BaseURL: url}, zerolog.Nop())
	require.NoError(t, err)
	_, err = api.RoomIdentity(context.Background())
	assert.True(t, httperrors.IsTransient(err))
}

func TestCreateRoom(t *testing.T) {
	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "medium", r.PostForm.Get("difficulty"))
		assert.Equal(t, "speed", r.PostForm.Get("game_mode"))
		assert.Equal(t, "20", r.PostForm.Get("game_time"))
		assert.Equal(t, "5", r.PostForm.Get("question_count"))
		assert.Empty(t, r.PostForm.Get("room_id"))
		writeJSON(w, http.StatusOK, map[string]string{"room_id": "NEW1"})
	}), "")

	req := CreateRoomRequest{Difficulty: "medium", GameMode: "speed", QuestionCount: 5, TimeLimitSeconds: 20}
	id, err := api.CreateRoom(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "NEW1", id.RoomID)
}

func TestCreateRoomRequest_Validate(t *testing.T) {
	good := CreateRoomRequest{Difficulty: "easy", GameMode: "first", QuestionCount: 3, TimeLimitSeconds: 10}
	require.NoError(t, good.Validate())

	cases := map[string]func(r *CreateRoomRequest){
		"room_id":        func(r *CreateRoomRequest) { r.RoomID = "a b" },
		"difficulty":     func(r *CreateRoomRequest) { r.Difficulty = "insane" },
		"game_mode":      func(r *CreateRoomRequest) { r.GameMode = "battle" },
		"question_count": func(r *CreateRoomRequest) { r.QuestionCount = 0 },
		"game_time":      func(r *CreateRoomRequest) { r.TimeLimitSeconds = -1 },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			r := good
			mutate(&r)
			err := r.Validate()
			var verr *httperrors.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, field, verr.Field)
		})
	}
}

func TestMatchEndpoints(t *testing.T) {
	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/join_ranked_queue":
			writeJSON(w, http.StatusOK, map[string]string{"status": "waiting"})
		case "/check_match_status":
			writeJSON(w, http.StatusOK, map[string]any{
				"status": "matched", "room_id": "R9", "opponent": "alice", "difficulty": "medium", "question_count": 7,
			})
		case "/cancel_ranked_queue":
			writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
		case "/reset_ranked_match":
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "reset"})
		default:
			http.NotFound(w, r)
		}
	}), "")
	ctx := context.Background()

	st, err := api.JoinRankedQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, MatchWaiting, st.Status)

	st, err = api.CheckMatchStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, MatchStatus{Status: MatchMatched, RoomID: "R9", Opponent: "alice", Difficulty: "medium", QuestionCount: 7}, st)

	require.NoError(t, api.CancelRankedQueue(ctx))
	require.NoError(t, api.ResetRankedMatch(ctx))

	err = api.ConfirmRankedMatch(ctx)
	assert.Equal(t, httperrors.ErrCodeRejected, httperrors.Code(err))
}

func TestRoomDetailsAndLeaderboard(t *testing.T) {
	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/get_room_details":
			writeJSON(w, http.StatusOK, map[string]any{
				"room_id": "R1", "game_mode": "first", "game_time": "15", "question_count": 5,
				"players": []string{"me", "bob"}, "scores": map[string]int{"bob": 10},
				"ready": map[string]bool{"me": true},
			})
		case "/api/leaderboard":
			writeJSON(w, http.StatusOK, map[string]any{
				"players": []map[string]any{{"username": "alice", "rating": 1620}, {"username": "bob", "rating": 1480}},
			})
		}
	}), "")
	ctx := context.Background()

	d, err := api.RoomDetails(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 15, d.GameTime)
	status := d.RoomStatus()
	assert.Equal(t, []string{"me", "bob"}, status.Players)
	assert.True(t, status.Ready["me"])

	board, err := api.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, LeaderboardEntry{Username: "alice", Rating: 1620}, board[0])
}

func TestBearerTokenAndCookiesAreShared(t *testing.T) {
	api, _ := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/join_room":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1", Path: "/"})
			writeJSON(w, http.StatusOK, map[string]string{"room_id": "R1"})
		case "/get_room_id":
			c, err := r.Cookie("session")
			require.NoError(t, err)
			assert.Equal(t, "s1", c.Value)
			writeJSON(w, http.StatusOK, map[string]string{"room_id": "R1", "game_mode": "first"})
		}
	}), "tok")
	ctx := context.Background()

	_, err := api.JoinRoom(ctx, "R1")
	require.NoError(t, err)
	id, err := api.RoomIdentity(ctx)
	require.NoError(t, err)
	assert.Equal(t, RoomIdentity{RoomID: "R1", GameMode: "first"}, id)
	assert.Equal(t, "Bearer tok", api.AuthHeader().Get("Authorization"))
}
