// Package likes keeps like counts for public prompts in redis. A set per
// prompt gives both the count and per-user dedupe in one structure.
package likes

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/promptlane/promptlib/internal/config"
)

type Service struct {
	rdb *redis.Client
}

func NewService(cfg config.RedisConfig) *Service {
	return &Service{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func NewServiceWithClient(rdb *redis.Client) *Service {
	return &Service{rdb: rdb}
}

func (s *Service) Close() error {
	return s.rdb.Close()
}

func likeKey(promptID uuid.UUID) string {
	return "likes:prompt:" + promptID.String()
}

// Like records a like. Returns false when the user had already liked the
// prompt.
func (s *Service) Like(ctx context.Context, promptID, userID uuid.UUID) (bool, error) {
	added, err := s.rdb.SAdd(ctx, likeKey(promptID), userID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("record like: %w", err)
	}
	return added > 0, nil
}

// Unlike removes a like. Returns false when there was nothing to remove.
func (s *Service) Unlike(ctx context.Context, promptID, userID uuid.UUID) (bool, error) {
	removed, err := s.rdb.SRem(ctx, likeKey(promptID), userID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("remove like: %w", err)
	}
	return removed > 0, nil
}

func (s *Service) Count(ctx context.Context, promptID uuid.UUID) (int64, error) {
	n, err := s.rdb.SCard(ctx, likeKey(promptID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count likes: %w", err)
	}
	return n, nil
}

func (s *Service) Liked(ctx context.Context, promptID, userID uuid.UUID) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, likeKey(promptID), userID.String()).Result()
	if err != nil {
		return false, fmt.Errorf("check like: %w", err)
	}
	return ok, nil
}

// Drop clears all like state for a prompt, used when a public prompt is
// unpublished.
func (s *Service) Drop(ctx context.Context, promptID uuid.UUID) error {
	if err := s.rdb.Del(ctx, likeKey(promptID)).Err(); err != nil {
		return fmt.Errorf("drop likes: %w", err)
	}
	return nil
}
