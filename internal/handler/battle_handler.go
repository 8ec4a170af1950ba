package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/neetpg/battle-backend/internal/middleware"
	"github.com/neetpg/battle-backend/internal/model"
	"github.com/neetpg/battle-backend/internal/response"
	"github.com/neetpg/battle-backend/internal/service"
	"github.com/neetpg/battle-backend/internal/validator"
	"github.com/rs/zerolog"
)

// Launcher is the launch controller surface used over HTTP.
type Launcher interface {
	Start(ctx context.Context, battleID uuid.UUID) (service.LaunchResult, error)
	Cancel(battleID uuid.UUID) bool
	Running() []model.RunningBattle
}

// BattleQueries serves stats and leaderboard reads.
type BattleQueries interface {
	Stats(ctx context.Context, mcqID uuid.UUID) (json.RawMessage, error)
	Leaderboard(ctx context.Context, battleID uuid.UUID) (json.RawMessage, error)
}

type battleURI struct {
	BattleID string `uri:"battle_id" binding:"required,uuid"`
}

type statsQuery struct {
	MCQID string `form:"mcq_id" binding:"required,uuid"`
}

type leaderboardQuery struct {
	BattleID string `form:"battle_id" binding:"required,uuid"`
}

// BattleHandler handles battle lifecycle and read endpoints.
type BattleHandler struct {
	launcher Launcher
	queries  BattleQueries
	log      zerolog.Logger
}

// NewBattleHandler creates a new BattleHandler.
func NewBattleHandler(launcher Launcher, queries BattleQueries, log zerolog.Logger) *BattleHandler {
	return &BattleHandler{
		launcher: launcher,
		queries:  queries,
		log:      log.With().Str("component", "battle_handler").Logger(),
	}
}

// StartBattle godoc
// POST /battle/start/:battle_id
func (h *BattleHandler) StartBattle(c *gin.Context) {
	var uri battleURI
	if fields := validator.BindURI(c, &uri); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, fields)
		return
	}
	battleID := uuid.MustParse(uri.BattleID)

	res, err := h.launcher.Start(c.Request.Context(), battleID)
	if err != nil {
		h.log.Error().Err(err).Str("battle_id", battleID.String()).Msg("Start battle failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Outcome(c, http.StatusOK, res == service.LaunchStarted, res.Message())
}

// CancelBattle godoc
// POST /battle/cancel/:battle_id
func (h *BattleHandler) CancelBattle(c *gin.Context) {
	var uri battleURI
	if fields := validator.BindURI(c, &uri); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidID, fields)
		return
	}

	if !h.launcher.Cancel(uuid.MustParse(uri.BattleID)) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	operator := ""
	if claims := middleware.GetClaims(c); claims != nil {
		operator = claims.Subject
	}
	h.log.Info().Str("battle_id", uri.BattleID).Str("operator", operator).Msg("Battle cancelled by operator")
	response.Outcome(c, http.StatusOK, true, "cancellation requested")
}

// ActiveBattles godoc
// GET /battle/active
func (h *BattleHandler) ActiveBattles(c *gin.Context) {
	response.Success(c, http.StatusOK, h.launcher.Running())
}

// GetStats godoc
// POST /battle/get_stats?mcq_id=
func (h *BattleHandler) GetStats(c *gin.Context) {
	var q statsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	rows, err := h.queries.Stats(c.Request.Context(), uuid.MustParse(q.MCQID))
	h.respondRows(c, rows, err, service.ErrNoStats)
}

// GetLeaderboard godoc
// POST /battle/leaderboard?battle_id=
func (h *BattleHandler) GetLeaderboard(c *gin.Context) {
	var q leaderboardQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	rows, err := h.queries.Leaderboard(c.Request.Context(), uuid.MustParse(q.BattleID))
	h.respondRows(c, rows, err, service.ErrNoLeaderboard)
}

func (h *BattleHandler) respondRows(c *gin.Context, rows json.RawMessage, err, empty error) {
	switch {
	case errors.Is(err, empty):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case err != nil:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Battle query failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	default:
		response.Success(c, http.StatusOK, rows)
	}
}
