package host

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

const DefaultRedisPrefix = "cavy:"

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 100

// RedisStore keeps host state in redis under a key prefix.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	log    log.Logger
}

// NewRedisClient parses url and returns a client.
func NewRedisClient(url string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	return redis.NewClient(opts), nil
}

// CheckRedisConnection pings the server with a short timeout.
func CheckRedisConnection(client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "error connecting to redis")
	}
	return nil
}

func NewRedisStore(client redis.UniversalClient, prefix string, logger log.Logger) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if logger == nil {
		logger = log.New()
	}
	return &RedisStore{client: client, prefix: prefix, log: logger}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "reading %q", key)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return errors.Wrapf(s.client.Set(ctx, s.key(key), value, 0).Err(), "writing %q", key)
}

func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	full, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(full))
	for _, k := range full {
		keys = append(keys, strings.TrimPrefix(k, s.prefix))
	}
	return keys, nil
}

// Clear deletes only the keys under the store prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	full, err := s.scan(ctx)
	if err != nil {
		return err
	}
	if len(full) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return errors.Wrap(err, "clearing redis state")
	}
	s.log.Debug("cleared redis state", "prefix", s.prefix, "keys", len(full))
	return nil
}

// scan returns the full names of all keys under the prefix. The prefix is
// matched literally, glob characters in it have no effect.
func (s *RedisStore) scan(ctx context.Context) ([]string, error) {
	match := escapeGlob(s.prefix) + "*"
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, errors.Wrap(err, "listing keys")
		}
		for _, k := range batch {
			if strings.HasPrefix(k, s.prefix) {
				keys = append(keys, k)
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	slices.Sort(keys)
	return slices.Compact(keys), nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
