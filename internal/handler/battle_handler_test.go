package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/neetpg/battle-backend/internal/middleware"
	"github.com/neetpg/battle-backend/internal/model"
	"github.com/neetpg/battle-backend/internal/response"
	"github.com/neetpg/battle-backend/internal/service"
	"github.com/neetpg/battle-backend/internal/validator"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

type fakeLauncher struct {
	result    service.LaunchResult
	err       error
	started   []uuid.UUID
	cancelled bool
	running   []model.RunningBattle
}

func (f *fakeLauncher) Start(_ context.Context, battleID uuid.UUID) (service.LaunchResult, error) {
	f.started = append(f.started, battleID)
	return f.result, f.err
}

func (f *fakeLauncher) Cancel(uuid.UUID) bool { return f.cancelled }

func (f *fakeLauncher) Running() []model.RunningBattle { return f.running }

type fakeQueries struct {
	rows json.RawMessage
	err  error
}

func (f fakeQueries) Stats(context.Context, uuid.UUID) (json.RawMessage, error) { return f.rows, f.err }

func (f fakeQueries) Leaderboard(context.Context, uuid.UUID) (json.RawMessage, error) {
	return f.rows, f.err
}

func newBattleRouter(l *fakeLauncher, q fakeQueries) *gin.Engine {
	h := NewBattleHandler(l, q, zerolog.Nop())
	r := gin.New()
	r.POST("/battle/start/:battle_id", h.StartBattle)
	r.POST("/battle/cancel/:battle_id", h.CancelBattle)
	r.GET("/battle/active", h.ActiveBattles)
	r.POST("/battle/get_stats", h.GetStats)
	r.POST("/battle/leaderboard", h.GetLeaderboard)
	return r
}

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorBody `json:"error"`
}

func serve(t *testing.T, r *gin.Engine, method, path string) (int, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	var body envelope
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return w.Code, body
}

func TestStartBattle(t *testing.T) {
	battleID := uuid.New()
	tests := []struct {
		name        string
		path        string
		launcher    *fakeLauncher
		wantCode    int
		wantSuccess bool
		wantMessage string
	}{
		{
			name:        "launched",
			path:        "/battle/start/" + battleID.String(),
			launcher:    &fakeLauncher{result: service.LaunchStarted},
			wantCode:    http.StatusOK,
			wantSuccess: true,
			wantMessage: "battle launched",
		},
		{
			name:        "already running",
			path:        "/battle/start/" + battleID.String(),
			launcher:    &fakeLauncher{result: service.LaunchAlreadyRunning},
			wantCode:    http.StatusOK,
			wantMessage: "already running",
		},
		{
			name:        "waiting",
			path:        "/battle/start/" + battleID.String(),
			launcher:    &fakeLauncher{result: service.LaunchWaiting},
			wantCode:    http.StatusOK,
			wantMessage: "waiting for players",
		},
		{
			name:     "collaborator failure",
			path:     "/battle/start/" + battleID.String(),
			launcher: &fakeLauncher{err: errors.New("db down")},
			wantCode: http.StatusInternalServerError,
		},
		{
			name:     "bad id",
			path:     "/battle/start/not-a-uuid",
			launcher: &fakeLauncher{},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := serve(t, newBattleRouter(tt.launcher, fakeQueries{}), http.MethodPost, tt.path)
			if code != tt.wantCode {
				t.Fatalf("code = %d, want %d", code, tt.wantCode)
			}
			if body.Success != tt.wantSuccess {
				t.Errorf("success = %v, want %v", body.Success, tt.wantSuccess)
			}
			if tt.wantMessage != "" && body.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", body.Message, tt.wantMessage)
			}
			if tt.wantCode == http.StatusOK && (len(tt.launcher.started) != 1 || tt.launcher.started[0] != battleID) {
				t.Errorf("started = %v", tt.launcher.started)
			}
		})
	}
}

func TestCancelAndActive(t *testing.T) {
	id := uuid.New()
	l := &fakeLauncher{running: []model.RunningBattle{{BattleID: id, StartedAt: time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)}}}
	r := newBattleRouter(l, fakeQueries{})

	if code, _ := serve(t, r, http.MethodPost, "/battle/cancel/"+id.String()); code != http.StatusNotFound {
		t.Errorf("cancel idle = %d, want 404", code)
	}
	l.cancelled = true
	if code, body := serve(t, r, http.MethodPost, "/battle/cancel/"+id.String()); code != http.StatusOK || !body.Success {
		t.Errorf("cancel = %d %+v", code, body)
	}

	code, body := serve(t, r, http.MethodGet, "/battle/active")
	if code != http.StatusOK {
		t.Fatalf("active = %d", code)
	}
	var list []model.RunningBattle
	if err := json.Unmarshal(body.Data, &list); err != nil || len(list) != 1 || list[0].BattleID != id {
		t.Errorf("active data = %s (%v)", body.Data, err)
	}
}

func TestCancelBattle_LogsOperator(t *testing.T) {
	var buf bytes.Buffer
	h := NewBattleHandler(&fakeLauncher{cancelled: true}, fakeQueries{}, zerolog.New(&buf))
	r := gin.New()
	r.POST("/battle/cancel/:battle_id", func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.OperatorClaims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "ops-alice"},
			Role:             "operator",
		})
		c.Next()
	}, h.CancelBattle)

	id := uuid.New()
	if code, _ := serve(t, r, http.MethodPost, "/battle/cancel/"+id.String()); code != http.StatusOK {
		t.Fatalf("cancel = %d, want 200", code)
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"operator":"ops-alice"`)) || !bytes.Contains(buf.Bytes(), []byte(id.String())) {
		t.Errorf("log = %s", buf.String())
	}
}

func TestStatsAndLeaderboard(t *testing.T) {
	id := uuid.New().String()
	tests := []struct {
		name     string
		path     string
		queries  fakeQueries
		wantCode int
		wantErr  response.ErrCode
	}{
		{name: "stats ok", path: "/battle/get_stats?mcq_id=" + id, queries: fakeQueries{rows: json.RawMessage(`[{"option":"a"}]`)}, wantCode: http.StatusOK},
		{name: "stats empty", path: "/battle/get_stats?mcq_id=" + id, queries: fakeQueries{err: service.ErrNoStats}, wantCode: http.StatusNotFound, wantErr: response.ErrNotFound},
		{name: "stats missing id", path: "/battle/get_stats", wantCode: http.StatusBadRequest, wantErr: response.ErrValidation},
		{name: "leaderboard ok", path: "/battle/leaderboard?battle_id=" + id, queries: fakeQueries{rows: json.RawMessage(`[{"score":1}]`)}, wantCode: http.StatusOK},
		{name: "leaderboard empty", path: "/battle/leaderboard?battle_id=" + id, queries: fakeQueries{err: service.ErrNoLeaderboard}, wantCode: http.StatusNotFound, wantErr: response.ErrNotFound},
		{name: "leaderboard failure", path: "/battle/leaderboard?battle_id=" + id, queries: fakeQueries{err: errors.New("rpc down")}, wantCode: http.StatusInternalServerError, wantErr: response.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := serve(t, newBattleRouter(&fakeLauncher{}, tt.queries), http.MethodPost, tt.path)
			if code != tt.wantCode {
				t.Fatalf("code = %d, want %d", code, tt.wantCode)
			}
			if tt.wantErr != "" {
				if body.Error == nil || body.Error.Code != tt.wantErr {
					t.Errorf("error = %+v, want %s", body.Error, tt.wantErr)
				}
				return
			}
			if !body.Success || string(body.Data) != string(tt.queries.rows) {
				t.Errorf("body = %+v", body)
			}
		})
	}
}
