package preferences

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"fro-server/internal/platform/errors"
)

const defaultRedisPrefix = "fro:prefs:"

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to redis and pings it. Keys never expire.
func NewRedis(cfg Config) (Store, error) {
	const op = "preferences.NewRedis"
	if cfg.Redis == nil || cfg.Redis.Addr == "" {
		return nil, errors.New(errors.KindConfig, op, "redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(errors.KindStorage, op, "redis ping failed", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &redisStore{client: client, prefix: prefix}, nil
}

func (s *redisStore) key(id string) string {
	return s.prefix + id
}

func (s *redisStore) Get(ctx context.Context, clientID string) (Preference, error) {
	raw, err := s.client.Get(ctx, s.key(clientID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return Preference{}, ErrNotFound
	}
	if err != nil {
		return Preference{}, err
	}
	var pref Preference
	if err := sonic.Unmarshal(raw, &pref); err != nil {
		return Preference{}, err
	}
	return pref, nil
}

func (s *redisStore) Save(ctx context.Context, pref Preference) error {
	if pref.ClientID == "" {
		return errors.New(errors.KindStorage, "preferences.redis.Save", "client id required")
	}
	data, err := sonic.Marshal(pref)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(pref.ClientID), data, 0).Err()
}

func (s *redisStore) Remove(ctx context.Context, clientID string) error {
	return s.client.Del(ctx, s.key(clientID)).Err()
}

func (s *redisStore) List(ctx context.Context) ([]string, error) {
	var (
		cursor uint64
		ids    []string
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			ids = append(ids, strings.TrimPrefix(k, s.prefix))
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"type": DriverRedis, "total": len(ids), "prefix": s.prefix}, nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
