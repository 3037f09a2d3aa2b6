package game

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RunDTO struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"      example:"WIN"`
	DurationMs int64     `json:"duration_ms"`
	Score      int64     `json:"score"`
	UserID     string    `json:"user_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"  example:"2025-07-27T16:05:05Z"`
}

type LeaderboardEntryDTO struct {
	ID         string    `json:"id"`
	Score      int64     `json:"score"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	// RunsStream buffers finished runs; the syncruns tailer drains it into
	// Postgres.
	RunsStream = "runs_stream"
	// LeaderboardCacheKey holds the marshalled top-N, rewritten by synclb.
	LeaderboardCacheKey = "lb:top"
)

var (
	ErrInvalidStatus = errors.New("status must be WIN or LOSE")
	ErrNegativeValue = errors.New("duration and score must be non-negative")
)

type IGameService interface {
	RecordRun(ctx context.Context, status string, durationMs, score int64, userID string) (*RunDTO, error)
	Leaderboard(ctx context.Context) ([]LeaderboardEntryDTO, error)
}

type gameService struct {
	rdc  *redis.Client
	db   *sql.DB
	topN int

	newID func() string
	now   func() time.Time
}

func NewGameService(rdc *redis.Client, db *sql.DB, topN int) IGameService {
	return &gameService{
		rdc:   rdc,
		db:    db,
		topN:  topN,
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// RecordRun appends a finished run to the Redis stream and answers with the
// accepted record. Persistence into Postgres happens asynchronously.
func (svc *gameService) RecordRun(ctx context.Context, status string, durationMs, score int64, userID string) (*RunDTO, error) {
	if status != "WIN" && status != "LOSE" {
		return nil, ErrInvalidStatus
	}
	if durationMs < 0 || score < 0 {
		return nil, ErrNegativeValue
	}

	run := &RunDTO{
		ID:         svc.newID(),
		Status:     status,
		DurationMs: durationMs,
		Score:      score,
		UserID:     userID,
		CreatedAt:  svc.now().UTC(),
	}

	err := svc.rdc.XAdd(ctx, &redis.XAddArgs{
		Stream: RunsStream,
		Values: []interface{}{
			"id", run.ID,
			"status", run.Status,
			"duration_ms", strconv.FormatInt(run.DurationMs, 10),
			"score", strconv.FormatInt(run.Score, 10),
			"user_id", run.UserID,
			"at", strconv.FormatInt(run.CreatedAt.UnixMilli(), 10),
		},
	}).Err()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Leaderboard returns the top runs, best score first, faster run breaking
// ties. Fast path is the cache key maintained by synclb; a cold cache falls
// back to Postgres.
func (svc *gameService) Leaderboard(ctx context.Context) ([]LeaderboardEntryDTO, error) {
	if cached, err := svc.rdc.Get(ctx, LeaderboardCacheKey).Result(); err == nil {
		var top []LeaderboardEntryDTO
		if jsonErr := json.Unmarshal([]byte(cached), &top); jsonErr == nil {
			return top, nil
		}
	}

	const q = `SELECT id, score, duration_ms, created_at
	             FROM runs
	         ORDER BY score DESC, duration_ms ASC
	            LIMIT $1`
	rows, err := svc.db.QueryContext(ctx, q, svc.topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	top := make([]LeaderboardEntryDTO, 0, svc.topN)
	for rows.Next() {
		var e LeaderboardEntryDTO
		if err := rows.Scan(&e.ID, &e.Score, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, err
		}
		top = append(top, e)
	}
	return top, rows.Err()
}
