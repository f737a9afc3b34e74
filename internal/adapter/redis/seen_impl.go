package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/user/imo-scraper/internal/entity"
)

const seenKeyPrefix = "scraper:seen:"

// SeenRepoImpl keeps one SET of canonical URLs per source.
type SeenRepoImpl struct {
	client *redis.Client
}

func NewSeenRepo(client *redis.Client) *SeenRepoImpl {
	return &SeenRepoImpl{client: client}
}

func (r *SeenRepoImpl) key(source entity.Source) string {
	return fmt.Sprintf("%s%s", seenKeyPrefix, source)
}

func (r *SeenRepoImpl) Load(ctx context.Context, source entity.Source) (map[string]struct{}, error) {
	members, err := r.client.SMembers(ctx, r.key(source)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(members))
	for _, m := range members {
		out[m] = struct{}{}
	}
	return out, nil
}

func (r *SeenRepoImpl) Add(ctx context.Context, source entity.Source, canonicalURL string) error {
	return r.client.SAdd(ctx, r.key(source), canonicalURL).Err()
}

// Warm copies urls into the set, used when Redis starts empty next to a
// populated database.
func (r *SeenRepoImpl) Warm(ctx context.Context, source entity.Source, urls map[string]struct{}) error {
	if len(urls) == 0 {
		return nil
	}
	members := make([]interface{}, 0, len(urls))
	for u := range urls {
		members = append(members, u)
	}
	return r.client.SAdd(ctx, r.key(source), members...).Err()
}
