package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRepo(t *testing.T) (*ChallengeRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewChallengeRepo(client), mr
}

func TestConsumeSuccess(t *testing.T) {
	repo, _ := testRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Put(ctx, "jane@site.example", "123456", 7, now.Add(10*time.Minute), 10*time.Minute))

	uid, err := repo.Consume(ctx, "jane@site.example", "123456", now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), uid)

	_, err = repo.Consume(ctx, "jane@site.example", "123456", now)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestConsumeMismatchKeepsChallenge(t *testing.T) {
	repo, _ := testRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Put(ctx, "jane@site.example", "123456", 7, now.Add(10*time.Minute), 10*time.Minute))

	_, err := repo.Consume(ctx, "jane@site.example", "654321", now)
	assert.ErrorIs(t, err, ErrCodeMismatch)

	uid, err := repo.Consume(ctx, "jane@site.example", "123456", now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), uid)
}

func TestConsumeExpiredWithinGrace(t *testing.T) {
	repo, _ := testRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Put(ctx, "jane@site.example", "123456", 7, now.Add(10*time.Minute), 10*time.Minute))

	// past the validity window but before the key's TTL runs out
	_, err := repo.Consume(ctx, "jane@site.example", "123456", now.Add(11*time.Minute))
	assert.ErrorIs(t, err, ErrChallengeExpired)

	// the expired challenge is gone
	_, err = repo.Consume(ctx, "jane@site.example", "123456", now.Add(11*time.Minute))
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestConsumeMissing(t *testing.T) {
	repo, _ := testRepo(t)

	_, err := repo.Consume(context.Background(), "nobody@site.example", "123456", time.Now())
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestPutOverwrites(t *testing.T) {
	repo, _ := testRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Put(ctx, "jane@site.example", "111111", 7, now.Add(10*time.Minute), 10*time.Minute))
	require.NoError(t, repo.Put(ctx, "jane@site.example", "222222", 7, now.Add(10*time.Minute), 10*time.Minute))

	_, err := repo.Consume(ctx, "jane@site.example", "111111", now)
	assert.ErrorIs(t, err, ErrCodeMismatch)

	uid, err := repo.Consume(ctx, "jane@site.example", "222222", now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), uid)
}

func TestDelete(t *testing.T) {
	repo, _ := testRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.Put(ctx, "jane@site.example", "123456", 7, now.Add(10*time.Minute), 10*time.Minute))
	require.NoError(t, repo.Delete(ctx, "jane@site.example"))

	_, err := repo.Consume(ctx, "jane@site.example", "123456", now)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestKeyTTLSetOnPut(t *testing.T) {
	repo, mr := testRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "jane@site.example", "123456", 7, time.Now().Add(10*time.Minute), 10*time.Minute))

	ttl := mr.TTL("otp:challenge:jane@site.example")
	assert.Greater(t, ttl, 10*time.Minute)
	assert.LessOrEqual(t, ttl, 20*time.Minute)
}
