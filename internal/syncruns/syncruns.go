package syncruns

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tiltrelay/internal/services/game"
)

// Run tails the runs stream and persists every finished run.
func Run(ctx context.Context, rdc *redis.Client, db *sql.DB) {
	go func() {
		lastID := "0-0"
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			// block up to 2 s for new entries
			res, err := rdc.XRead(ctx, &redis.XReadArgs{
				Streams: []string{game.RunsStream, lastID},
				Count:   100,
				Block:   2000 * time.Millisecond,
			}).Result()
			if err != nil && err != redis.Nil {
				zap.L().Warn("syncruns.xread", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			if len(res) == 0 {
				continue
			}
			entries := res[0].Messages
			if err := persist(ctx, db, entries); err != nil {
				zap.L().Warn("syncruns.persist", zap.Error(err))
			}
			lastID = entries[len(entries)-1].ID
		}
	}()
}

func persist(ctx context.Context, db *sql.DB, msgs []redis.XMessage) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	const ins = `INSERT INTO runs (id, status, duration_ms, score, user_id, created_at)
	             VALUES ($1, $2, $3, $4, NULLIF($5, ''), to_timestamp($6 / 1000.0))
	             ON CONFLICT DO NOTHING`
	for _, m := range msgs {
		id, _ := m.Values["id"].(string)
		status, _ := m.Values["status"].(string)
		durationStr, _ := m.Values["duration_ms"].(string)
		scoreStr, _ := m.Values["score"].(string)
		userID, _ := m.Values["user_id"].(string)
		atStr, _ := m.Values["at"].(string)

		durationMs, _ := strconv.ParseInt(durationStr, 10, 64)
		score, _ := strconv.ParseInt(scoreStr, 10, 64)
		at, _ := strconv.ParseInt(atStr, 10, 64)
		if _, err := tx.ExecContext(ctx, ins, id, status, durationMs, score, userID, at); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
