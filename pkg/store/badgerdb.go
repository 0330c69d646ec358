package store

import (
	"fmt"

	"github.com/dgraph-io/badger/v2"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/weilazy/danmu-proxy/pkg/logadapter"
)

// BadgerTier persists to a local BadgerDB directory. It is the durable
// fallback for standalone deployments that have neither a database nor Redis.
type BadgerTier struct {
	db *badger.DB
}

func NewBadgerTier(path string, logger *zap.Logger) (*BadgerTier, error) {
	opts := badger.DefaultOptions(path).WithLogger(logadapter.NewBadger2Zap(logger))
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("couldn't open badger at %v: %w", path, err)
	}
	return &BadgerTier{db: db}, nil
}

func (t *BadgerTier) Name() string { return "badger" }

func (t *BadgerTier) LoadConfig() (map[string]string, error) {
	value, found, err := t.get("env")
	if err != nil || !found {
		return nil, err
	}
	overlay := map[string]string{}
	if err := json.Unmarshal(value, &overlay); err != nil {
		return nil, fmt.Errorf("couldn't decode config overlay: %w", err)
	}
	return overlay, nil
}

func (t *BadgerTier) SaveConfig(overlay map[string]string) error {
	value, err := json.Marshal(overlay)
	if err != nil {
		return err
	}
	return t.set("env", value)
}

func (t *BadgerTier) LoadCache(name string) ([]byte, bool, error) {
	return t.get("cache:" + name)
}

func (t *BadgerTier) SaveCache(name string, value []byte) error {
	return t.set("cache:"+name, value)
}

func (t *BadgerTier) set(key string, value []byte) error {
	return t.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (t *BadgerTier) get(key string) ([]byte, bool, error) {
	var value []byte
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (t *BadgerTier) Close() error {
	return t.db.Close()
}
