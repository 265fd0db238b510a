package host

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// StoreKind selects the backing store for host state.
type StoreKind string

const (
	StoreMemory  StoreKind = "memory"
	StoreLevelDB StoreKind = "leveldb"
	StoreRedis   StoreKind = "redis"
)

// IsValid checks if the store kind is supported.
func (k StoreKind) IsValid() bool {
	switch k {
	case StoreMemory, StoreLevelDB, StoreRedis:
		return true
	default:
		return false
	}
}

// StoreConfig configures NewStore.
type StoreConfig struct {
	Kind        StoreKind
	LevelDBPath string
	RedisURL    string
	RedisPrefix string
	Log         log.Logger
}

// NewStore opens the store described by cfg.
func NewStore(cfg StoreConfig) (Store, error) {
	switch StoreKind(strings.ToLower(string(cfg.Kind))) {
	case StoreMemory, "":
		return NewMemStore(), nil
	case StoreLevelDB:
		if cfg.LevelDBPath == "" {
			return nil, fmt.Errorf("leveldb store requires a path")
		}
		return OpenLevelDB(cfg.LevelDBPath)
	case StoreRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis store requires a url")
		}
		client, err := NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		if err := CheckRedisConnection(client); err != nil {
			_ = client.Close()
			return nil, err
		}
		return NewRedisStore(client, cfg.RedisPrefix, cfg.Log), nil
	default:
		return nil, fmt.Errorf("unknown store kind %q: must be one of %s, %s, %s",
			cfg.Kind, StoreMemory, StoreLevelDB, StoreRedis)
	}
}
