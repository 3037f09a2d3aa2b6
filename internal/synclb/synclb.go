package synclb

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tiltrelay/internal/services/game"
)

const refreshEvery = 10 * time.Second

// Run rewrites the cached leaderboard from Postgres every 10 s, so reads hit
// Redis and a stale cache self-heals after at most one interval.
func Run(ctx context.Context, rdc *redis.Client, db *sql.DB, topN int) {
	tk := time.NewTicker(refreshEvery)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				refreshOnce(ctx, rdc, db, topN)
			}
		}
	}()
}

func refreshOnce(ctx context.Context, rdc *redis.Client, db *sql.DB, topN int) {
	const q = `SELECT id, score, duration_ms, created_at
	             FROM runs
	         ORDER BY score DESC, duration_ms ASC
	            LIMIT $1`
	rows, err := db.QueryContext(ctx, q, topN)
	if err != nil {
		zap.L().Error("synclb.query", zap.Error(err))
		return
	}
	defer rows.Close()

	top := make([]game.LeaderboardEntryDTO, 0, topN)
	for rows.Next() {
		var e game.LeaderboardEntryDTO
		if err := rows.Scan(&e.ID, &e.Score, &e.DurationMs, &e.CreatedAt); err != nil {
			zap.L().Error("synclb.scan", zap.Error(err))
			return
		}
		top = append(top, e)
	}
	if err := rows.Err(); err != nil {
		zap.L().Error("synclb.rows", zap.Error(err))
		return
	}

	payload, err := json.Marshal(top)
	if err != nil {
		return
	}
	if err := rdc.Set(ctx, game.LeaderboardCacheKey, payload, 0).Err(); err != nil {
		zap.L().Debug("synclb_error", zap.Error(err))
	}
}
