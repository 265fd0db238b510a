package host

import (
	"context"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

var _ Store = (*LevelDBStore)(nil)

// LevelDBStore persists host state in a LevelDB database.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a database at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %s", path)
	}
	return NewLevelDBStore(db), nil
}

func NewLevelDBStore(db *leveldb.DB) *LevelDBStore {
	return &LevelDBStore{db: db}
}

func (s *LevelDBStore) Get(_ context.Context, key string) (string, bool, error) {
	v, err := s.db.Get([]byte(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "reading %q", key)
	}
	return string(v), true, nil
}

func (s *LevelDBStore) Set(_ context.Context, key, value string) error {
	return errors.Wrapf(s.db.Put([]byte(key), []byte(value), nil), "writing %q", key)
}

func (s *LevelDBStore) Keys(_ context.Context) ([]string, error) {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	return keys, errors.Wrap(iter.Error(), "iterating keys")
}

// Clear deletes every key in one synced batch.
func (s *LevelDBStore) Clear(ctx context.Context) error {
	keys, err := s.Keys(ctx)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	for _, k := range keys {
		batch.Delete([]byte(k))
	}
	return errors.Wrap(s.db.Write(batch, &opt.WriteOptions{Sync: true}), "clearing leveldb")
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
