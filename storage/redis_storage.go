package storage

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RedisStorage keeps values in a Redis hash.
// The namespace (a device or session id) is the hash key and each storage key is a field,
// so one hash holds everything a single storefront session persists.
type RedisStorage struct {
	client    *redis.Client
	namespace string
	log       logrus.FieldLogger

	retryInitial    time.Duration
	retryMaxElapsed time.Duration
}

// RedisOption configures a RedisStorage.
type RedisOption func(*RedisStorage)

// WithRetry sets the first backoff interval and the overall deadline used by Initialize.
func WithRetry(initial, maxElapsed time.Duration) RedisOption {
	return func(r *RedisStorage) {
		r.retryInitial = initial
		r.retryMaxElapsed = maxElapsed
	}
}

// WithRedisLogger sets the logger.
func WithRedisLogger(log logrus.FieldLogger) RedisOption {
	return func(r *RedisStorage) {
		r.log = log
	}
}

// NewRedisStorage accepts a Redis URL ("redis://...") or a plain "host:port" address.
func NewRedisStorage(redisAddr, namespace string, opts ...RedisOption) (*RedisStorage, error) {
	if namespace == "" {
		return nil, errors.New("redis namespace is required")
	}

	redisOpts, err := redis.ParseURL(redisAddr)
	if err != nil {
		// Not in "redis://..." form, use it as a plain Addr.
		redisOpts = &redis.Options{
			Addr:         redisAddr,
			MinIdleConns: 1,
			DialTimeout:  30 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			PoolSize:     10,
			PoolTimeout:  4 * time.Second,
			IdleTimeout:  180 * time.Second,
		}
	}

	client := redis.NewClient(redisOpts)
	client.AddHook(redisotel.NewTracingHook())

	r := &RedisStorage{
		client:          client,
		namespace:       namespace,
		log:             logrus.StandardLogger(),
		retryInitial:    time.Second,
		retryMaxElapsed: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithField("storage", "redis")
	return r, nil
}

// Initialize waits for Redis to answer a ping, retrying with exponential backoff.
func (r *RedisStorage) Initialize(ctx context.Context) error {
	r.log.Info("RedisStorage: initializing connection...")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.retryInitial
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = r.retryMaxElapsed

	attempt := 0
	op := func() error {
		attempt++
		if r.Ping(ctx) {
			return nil
		}
		return errors.Errorf("ping attempt %d failed", attempt)
	}
	notify := func(err error, wait time.Duration) {
		r.log.WithError(err).Warnf("RedisStorage: waiting %v before next attempt", wait)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return errors.Wrapf(err, "failed to connect to Redis after %d attempts", attempt)
	}
	r.log.Infof("RedisStorage initialized successfully on attempt %d", attempt)
	return nil
}

// Get reads the hash field for key.
func (r *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.HGet(ctx, r.namespace, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "redis HGet %s %s", r.namespace, key)
	}
	return val, nil
}

// Set writes the hash field for key.
func (r *RedisStorage) Set(ctx context.Context, key, value string) error {
	if err := r.client.HSet(ctx, r.namespace, key, value).Err(); err != nil {
		return errors.Wrapf(err, "redis HSet %s %s", r.namespace, key)
	}
	return nil
}

// Ping checks if Redis is alive.
func (r *RedisStorage) Ping(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := r.client.Ping(pingCtx).Err(); err != nil {
		r.log.WithError(err).Warn("RedisStorage: ping failed")
		return false
	}
	return true
}

// Close releases the connection pool.
func (r *RedisStorage) Close() error {
	return r.client.Close()
}
