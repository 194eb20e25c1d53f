package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Challenge store errors. The expired case is distinct from the missing case:
// a coordinator who waited too long should be told to request a new code, not
// that no code exists.
var (
	ErrChallengeNotFound = errors.New("no challenge stored for email")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrCodeMismatch      = errors.New("challenge code mismatch")
)

// consumeScript is the atomic verify-then-delete. It runs as one Redis script
// so two concurrent verifications can never both succeed against one
// challenge, and a mismatched code leaves the challenge in place.
// KEYS[1] challenge key; ARGV[1] supplied code; ARGV[2] now (unix seconds).
var consumeScript = redis.NewScript(`
local exp = redis.call('HGET', KEYS[1], 'expires_at')
if not exp then
  return {'missing'}
end
if tonumber(ARGV[2]) > tonumber(exp) then
  redis.call('DEL', KEYS[1])
  return {'expired'}
end
if redis.call('HGET', KEYS[1], 'code') ~= ARGV[1] then
  return {'mismatch'}
end
local uid = redis.call('HGET', KEYS[1], 'user_id')
redis.call('DEL', KEYS[1])
return {'ok', uid}
`)

// ChallengeRepo stores one live OTP challenge per email in Redis. Keys carry
// a TTL of twice the validity window: within the grace half the verify path
// can still report "expired" precisely; after that the key is simply gone.
// Being external, the store survives API restarts and is shared by all
// instances.
type ChallengeRepo struct {
	rdb    *redis.Client
	prefix string
}

func NewChallengeRepo(rdb *redis.Client) *ChallengeRepo {
	return &ChallengeRepo{rdb: rdb, prefix: "otp:challenge:"}
}

func (r *ChallengeRepo) key(email string) string { return r.prefix + email }

// Put stores a challenge for the email, silently overwriting any prior one.
func (r *ChallengeRepo) Put(ctx context.Context, email, code string, userID int64, expiresAt time.Time, window time.Duration) error {
	key := r.key(email)
	if err := r.rdb.HSet(ctx, key,
		"code", code,
		"user_id", userID,
		"expires_at", expiresAt.Unix(),
	).Err(); err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	if err := r.rdb.PExpire(ctx, key, 2*window).Err(); err != nil {
		return fmt.Errorf("expire challenge: %w", err)
	}
	return nil
}

// Delete removes any stored challenge for the email.
func (r *ChallengeRepo) Delete(ctx context.Context, email string) error {
	return r.rdb.Del(ctx, r.key(email)).Err()
}

// Consume atomically verifies and deletes the challenge. On success it
// returns the owning user id. A mismatch keeps the challenge; expiry and
// success both remove it.
func (r *ChallengeRepo) Consume(ctx context.Context, email, code string, now time.Time) (int64, error) {
	res, err := consumeScript.Run(ctx, r.rdb, []string{r.key(email)}, code, now.Unix()).Slice()
	if err != nil {
		return 0, fmt.Errorf("consume challenge: %w", err)
	}
	if len(res) == 0 {
		return 0, fmt.Errorf("consume challenge: empty script reply")
	}
	switch res[0] {
	case "ok":
		if len(res) < 2 {
			return 0, fmt.Errorf("consume challenge: missing user id in reply")
		}
		uid, err := strconv.ParseInt(fmt.Sprint(res[1]), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("consume challenge: bad user id: %w", err)
		}
		return uid, nil
	case "expired":
		return 0, ErrChallengeExpired
	case "mismatch":
		return 0, ErrCodeMismatch
	default:
		return 0, ErrChallengeNotFound
	}
}
