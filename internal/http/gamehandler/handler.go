package gamehandler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"tiltrelay/internal/http/ratelimit"
	"tiltrelay/internal/services/game"
	"tiltrelay/internal/services/keymap"
)

type Handler struct {
	gameSvc   game.IGameService
	keymapSvc keymap.IKeymapService
}

func New(gameSvc game.IGameService, keymapSvc keymap.IKeymapService) *Handler {
	return &Handler{gameSvc: gameSvc, keymapSvc: keymapSvc}
}

func (h *Handler) Register(r gin.IRoutes) {
	// runs arrive once per finished game; the bucket absorbs bursts from a
	// room full of players without letting a broken client flood the table
	r.POST("/runs", ratelimit.New(rate.Limit(20), 40), h.recordRun)
	r.GET("/leaderboard", h.leaderboard)
	r.GET("/keymaps/:user_id", h.getKeymap)
	r.PUT("/keymaps/:user_id", h.setKeymap)
}

// @Summary		Record a finished run
// @Description	Stores the outcome of one game run for the leaderboard.
// @Tags			Game
// @Param			body	body	RecordRunBody	true	"Run outcome"
// @Success		202	{object}	game.RunDTO
// @Failure		400	{object}	ErrorResponse
// @Failure		500	{object}	ErrorResponse
// @Router			/runs [post]
func (h *Handler) recordRun(ginCtx *gin.Context) {
	var body RecordRunBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	run, err := h.gameSvc.RecordRun(ginCtx.Request.Context(),
		body.Status, body.DurationMs, body.Score, body.UserID)
	if err != nil {
		ginCtx.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusAccepted, run)
}

// @Summary		Leaderboard
// @Description	Returns the top runs, best score first, faster run breaking ties.
// @Tags			Game
// @Success		200	{array}		game.LeaderboardEntryDTO
// @Failure		500	{object}	ErrorResponse
// @Router			/leaderboard [get]
func (h *Handler) leaderboard(c *gin.Context) {
	top, err := h.gameSvc.Leaderboard(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, top)
}

// @Summary		Get a user's keymap
// @Description	Returns the stored keymap, or the default when none is stored.
// @Tags			Keymaps
// @Param			user_id	path		string	true	"User ID"	default(user123)
// @Success		200	{object}	keymap.Mapping
// @Failure		500	{object}	ErrorResponse
// @Router			/keymaps/{user_id} [get]
func (h *Handler) getKeymap(c *gin.Context) {
	m, err := h.keymapSvc.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, m)
}

// @Summary		Set a user's keymap
// @Description	Replaces the stored keymap; each action takes 1-8 key codes.
// @Tags			Keymaps
// @Param			user_id	path	string			true	"User ID"	default(user123)
// @Param			body	body	keymap.Mapping	true	"Keymap payload"
// @Success		200	{object}	keymap.Mapping
// @Failure		400	{object}	ErrorResponse
// @Failure		500	{object}	ErrorResponse
// @Router			/keymaps/{user_id} [put]
func (h *Handler) setKeymap(ginCtx *gin.Context) {
	var m keymap.Mapping
	if err := ginCtx.ShouldBindJSON(&m); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	saved, err := h.keymapSvc.Set(ginCtx.Request.Context(), ginCtx.Param("user_id"), m)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, keymap.ErrInvalidMapping) {
			status = http.StatusBadRequest
		}
		ginCtx.JSON(status, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusOK, saved)
}
