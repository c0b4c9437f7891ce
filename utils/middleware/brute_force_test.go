package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryAttempts struct {
	counts  map[string]int64
	locks   map[string]time.Duration
	failErr error
}

func newMemoryAttempts() *memoryAttempts {
	return &memoryAttempts{counts: map[string]int64{}, locks: map[string]time.Duration{}}
}

func (m *memoryAttempts) Exists(_ context.Context, key string) (bool, error) {
	if m.failErr != nil {
		return false, m.failErr
	}
	_, ok := m.locks[key]
	return ok, nil
}

func (m *memoryAttempts) TTL(_ context.Context, key string) (time.Duration, error) {
	return m.locks[key], nil
}

func (m *memoryAttempts) Increment(_ context.Context, key string) (int64, error) {
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memoryAttempts) Expire(context.Context, string, time.Duration) error { return nil }

func (m *memoryAttempts) Set(_ context.Context, key string, _ interface{}, expiration time.Duration) error {
	m.locks[key] = expiration
	return nil
}

func (m *memoryAttempts) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.counts, k)
		delete(m.locks, k)
	}
	return nil
}

// loginApp fails every login except password "ok"
func loginApp(b *BruteForceProtection) *fiber.App {
	app := fiber.New()
	app.Post("/login", func(c *fiber.Ctx) error {
		email := c.Query("email")
		if locked, err := b.CheckLocked(c, email); locked {
			return err
		}
		if c.Query("password") != "ok" {
			b.RecordFailedAttempt(c, email)
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		b.RecordSuccessfulAttempt(c, email)
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func login(t *testing.T, app *fiber.App, email, password string) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("POST", "/login?email="+email+"&password="+password, nil))
	require.NoError(t, err)
	return resp.StatusCode
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	store := newMemoryAttempts()
	app := loginApp(NewBruteForceProtection(store))

	for i := 0; i < 5; i++ {
		assert.Equal(t, fiber.StatusUnauthorized, login(t, app, "bursar@school.ng", "bad"))
	}

	resp, err := app.Test(httptest.NewRequest("POST", "/login?email=BURSAR@school.ng&password=ok", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode, "emails are matched case-insensitively")
	assert.Equal(t, "120", resp.Header.Get("Retry-After"))

	// Another account from the same address is unaffected.
	assert.Equal(t, fiber.StatusOK, login(t, app, "head@school.ng", "ok"))
}

func TestProgressiveLockDurations(t *testing.T) {
	store := newMemoryAttempts()
	b := NewBruteForceProtection(store)
	app := fiber.New()
	app.Post("/fail", func(c *fiber.Ctx) error {
		b.RecordFailedAttempt(c, "x@y.z")
		return nil
	})

	for i := 1; i <= 25; i++ {
		_, err := app.Test(httptest.NewRequest("POST", "/fail", nil))
		require.NoError(t, err)
		switch i {
		case 4:
			assert.Empty(t, store.locks)
		case 5:
			assert.Equal(t, 2*time.Minute, onlyLock(t, store))
		case 10:
			assert.Equal(t, time.Hour, onlyLock(t, store))
		case 25:
			assert.Equal(t, 24*time.Hour, onlyLock(t, store))
		}
	}
}

func onlyLock(t *testing.T, m *memoryAttempts) time.Duration {
	t.Helper()
	require.Len(t, m.locks, 1)
	for _, d := range m.locks {
		return d
	}
	return 0
}

func TestAttemptKeys(t *testing.T) {
	attempts, lock := attemptKeys("10.0.0.1", " Bursar@School.ng ")
	assert.Equal(t, "brute_force:attempts:10.0.0.1:bursar@school.ng", attempts)
	assert.Equal(t, "brute_force:lock:10.0.0.1:bursar@school.ng", lock)
}

func TestSuccessClearsAttempts(t *testing.T) {
	store := newMemoryAttempts()
	app := loginApp(NewBruteForceProtection(store))

	for i := 0; i < 4; i++ {
		login(t, app, "a@b.c", "bad")
	}
	assert.Equal(t, fiber.StatusOK, login(t, app, "a@b.c", "ok"))
	assert.Empty(t, store.counts)
}

func TestLockoutFailsOpen(t *testing.T) {
	store := newMemoryAttempts()
	store.failErr = errors.New("redis unavailable")
	app := loginApp(NewBruteForceProtection(store))
	assert.Equal(t, fiber.StatusOK, login(t, app, "a@b.c", "ok"))

	var disabled *BruteForceProtection
	app = loginApp(disabled)
	for i := 0; i < 6; i++ {
		login(t, app, "a@b.c", "bad")
	}
	assert.Equal(t, fiber.StatusOK, login(t, app, "a@b.c", "ok"))
}
