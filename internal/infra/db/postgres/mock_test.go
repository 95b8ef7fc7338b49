//go:build !integration

package postgres

import (
	"context"
	"time"

	"membership-access/internal/domain/model"
	"membership-access/internal/domain/ports/repository"
	red "membership-access/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerProfileRepo mocks the database repository that the profile decorator wraps.
type mockInnerProfileRepo struct {
	FindByAddressFunc func(ctx context.Context, tx repository.Tx, address string) (*model.Profile, error)
	SaveFunc          func(ctx context.Context, tx repository.Tx, p *model.Profile) error
}

func (m *mockInnerProfileRepo) FindByAddress(ctx context.Context, tx repository.Tx, address string) (*model.Profile, error) {
	return m.FindByAddressFunc(ctx, tx, address)
}
func (m *mockInnerProfileRepo) Save(ctx context.Context, tx repository.Tx, p *model.Profile) error {
	return m.SaveFunc(ctx, tx, p)
}

// mockRedisClient mocks our Redis client wrapper. Unset funcs behave like an empty cache.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", red.Nil
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) DelIfEqual(ctx context.Context, key, value string) (bool, error) {
	return true, nil
}
func (m *mockRedisClient) Close() error { return nil }
