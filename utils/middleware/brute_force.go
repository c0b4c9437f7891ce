package middleware

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/school-backoffice/utils/response"
)

// AttemptStore is the slice of *cache.RedisCache the lockout needs
type AttemptStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// BruteForceProtection locks out an IP and email pair after repeated failed logins.
// A nil store disables it.
type BruteForceProtection struct {
	store AttemptStore
}

// NewBruteForceProtection creates a new brute force protection instance
func NewBruteForceProtection(store AttemptStore) *BruteForceProtection {
	return &BruteForceProtection{store: store}
}

func attemptKeys(ip, email string) (string, string) {
	subject := ip + ":" + strings.ToLower(strings.TrimSpace(email))
	return "brute_force:attempts:" + subject, "brute_force:lock:" + subject
}

// CheckLocked rejects the request with 429 while ip and email are locked out
func (b *BruteForceProtection) CheckLocked(c *fiber.Ctx, email string) (bool, error) {
	if b == nil || b.store == nil {
		return false, nil
	}
	ctx := c.UserContext()
	_, lockKey := attemptKeys(c.IP(), email)

	locked, err := b.store.Exists(ctx, lockKey)
	if err != nil {
		// Redis being down must not block staff from logging in
		log.Printf("[AUTH] lockout check failed: %v", err)
		return false, nil
	}
	if !locked {
		return false, nil
	}

	retryAfter := 60
	if ttl, err := b.store.TTL(ctx, lockKey); err == nil && ttl > 0 {
		retryAfter = int(ttl.Seconds())
	}
	c.Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	return true, response.TooManyRequests(c, fmt.Sprintf("Too many failed attempts. Try again in %d seconds", retryAfter))
}

// RecordFailedAttempt counts a failure and applies progressive lockouts
func (b *BruteForceProtection) RecordFailedAttempt(c *fiber.Ctx, email string) {
	if b == nil || b.store == nil {
		return
	}
	ctx := c.UserContext()
	attemptKey, lockKey := attemptKeys(c.IP(), email)

	attempts, err := b.store.Increment(ctx, attemptKey)
	if err != nil {
		return
	}
	if attempts == 1 {
		_ = b.store.Expire(ctx, attemptKey, 15*time.Minute)
	}

	var lockDuration time.Duration
	switch {
	case attempts >= 25:
		lockDuration = 24 * time.Hour
	case attempts >= 10:
		lockDuration = time.Hour
	case attempts >= 5:
		lockDuration = 2 * time.Minute
	default:
		return
	}

	if err := b.store.Set(ctx, lockKey, "locked", lockDuration); err != nil {
		log.Printf("[AUTH] failed to apply lockout: %v", err)
	}
}

// RecordSuccessfulAttempt clears failed attempts on successful login
func (b *BruteForceProtection) RecordSuccessfulAttempt(c *fiber.Ctx, email string) {
	if b == nil || b.store == nil {
		return
	}
	attemptKey, lockKey := attemptKeys(c.IP(), email)
	_ = b.store.Delete(c.UserContext(), attemptKey, lockKey)
}
