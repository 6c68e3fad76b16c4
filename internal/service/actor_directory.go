package service

import (
	"context"
	"time"

	"farmacaixa/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	actorNameKeyPrefix = "actor:name:"
	actorNameTTL       = 10 * time.Minute
)

// ActorDirectory resolves operator ids into display names for history and
// reports. Names are cosmetic: lookups never fail the calling operation.
type ActorDirectory struct {
	repo repository.ActorRepository
	rdb  *redis.Client // optional read-through cache
}

func NewActorDirectory(repo repository.ActorRepository, rdb *redis.Client) *ActorDirectory {
	return &ActorDirectory{repo: repo, rdb: rdb}
}

// Names returns the display names it could resolve; unknown ids are absent.
func (d *ActorDirectory) Names(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]string {
	out := make(map[uuid.UUID]string, len(ids))
	missing := dedupe(ids)
	if len(missing) == 0 {
		return out
	}

	if d.rdb != nil {
		keys := make([]string, len(missing))
		for i, id := range missing {
			keys[i] = actorNameKeyPrefix + id.String()
		}
		vals, err := d.rdb.MGet(ctx, keys...).Result()
		if err == nil {
			var still []uuid.UUID
			for i, v := range vals {
				if name, ok := v.(string); ok && name != "" {
					out[missing[i]] = name
				} else {
					still = append(still, missing[i])
				}
			}
			missing = still
		}
	}
	if len(missing) == 0 || d.repo == nil {
		return out
	}

	actors, err := d.repo.FindByIDs(ctx, missing)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("actor directory lookup failed")
		return out
	}
	var pipe redis.Pipeliner
	if d.rdb != nil {
		pipe = d.rdb.Pipeline()
	}
	for _, a := range actors {
		out[a.ID] = a.DisplayName
		if pipe != nil {
			pipe.Set(ctx, actorNameKeyPrefix+a.ID.String(), a.DisplayName, actorNameTTL)
		}
	}
	if pipe != nil && len(actors) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			log.Ctx(ctx).Debug().Err(err).Msg("actor name cache fill failed")
		}
	}
	return out
}

// Forget drops a cached name after the directory entry changed.
func (d *ActorDirectory) Forget(ctx context.Context, id uuid.UUID) {
	if d.rdb == nil {
		return
	}
	_ = d.rdb.Del(ctx, actorNameKeyPrefix+id.String()).Err()
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
