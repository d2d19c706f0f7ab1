package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	idemPrefix           = "idem:v1:"
	idemPending          = "!pending"

	idemStoreTimeout = 2 * time.Second
)

// replay is the captured response a repeated key gets back verbatim.
type replay struct {
	Status  int               `json:"status"`
	Body    string            `json:"body"`
	Headers map[string]string `json:"headers"`
}

// Idempotency makes repeated ledger submissions safe: the first request
// under a key reserves it and records its response in Redis, later requests
// replay that response instead of posting transfers twice. Safe methods
// pass through untouched.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch strings.ToUpper(c.Method()) {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
		}
		cacheKey := idemPrefix + key

		ctx, cancel := context.WithTimeout(context.Background(), idemStoreTimeout)
		defer cancel()

		prior, err := cache.Get(ctx, cacheKey).Result()
		switch {
		case err == nil:
			if prior == idemPending {
				return fiber.NewError(fiber.StatusConflict, "request with this key is still in flight")
			}
			var rec replay
			if err := json.Unmarshal([]byte(prior), &rec); err != nil {
				logger.Warn("unreadable idempotency record", slog.String("key", key), slog.Any("error", err))
				return fiber.NewError(fiber.StatusConflict, "duplicate request")
			}
			for header, value := range rec.Headers {
				if strings.EqualFold(header, fiber.HeaderContentLength) {
					continue
				}
				c.Set(header, value)
			}
			return c.Status(rec.Status).SendString(rec.Body)
		case err != redis.Nil:
			logger.Error("idempotency lookup failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store unavailable")
		}

		if err := cache.SetNX(ctx, cacheKey, idemPending, ttl).Err(); err != nil {
			logger.Error("idempotency key reservation failed", slog.String("key", key), slog.Any("error", err))
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store unavailable")
		}

		if err := c.Next(); err != nil {
			// failed requests release the key so the caller may retry
			releaseKey(cache, cacheKey)
			return err
		}

		rec := replay{
			Status:  c.Response().StatusCode(),
			Body:    string(c.Response().Body()),
			Headers: map[string]string{},
		}
		c.Response().Header.VisitAll(func(k, v []byte) {
			rec.Headers[string(k)] = string(v)
		})

		payload, err := json.Marshal(rec)
		if err != nil {
			logger.Error("idempotency record encode failed", slog.String("key", key), slog.Any("error", err))
			releaseKey(cache, cacheKey)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency record failed")
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), idemStoreTimeout)
		defer persistCancel()
		if err := cache.Set(persistCtx, cacheKey, payload, ttl).Err(); err != nil {
			logger.Error("idempotency record write failed", slog.String("key", key), slog.Any("error", err))
			releaseKey(cache, cacheKey)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency record failed")
		}
		return nil
	}
}

// releaseKey drops a reservation on a detached context so a canceled request
// cannot leave the key poisoned.
func releaseKey(cache *redis.Client, cacheKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), idemStoreTimeout)
	defer cancel()
	cache.Del(ctx, cacheKey)
}
