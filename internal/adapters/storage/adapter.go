package storage

import (
	"encoding/binary"
	"errors"
	"log/slog"

	"github.com/dgraph-io/badger/v3"
	"github.com/eleven-am/warden/internal/ports"
)

// Adapter implements StoragePort over a local badger database. One process
// owns the database; there is no replication layer.
type Adapter struct {
	db     *badger.DB
	logger *slog.Logger
}

func NewAdapter(dataDir string, inMemory bool, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badger.DefaultOptions(dataDir).
		WithLogger(nil).
		WithInMemory(inMemory)
	if inMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		db:     db,
		logger: logger.With("component", "storage"),
	}, nil
}

func (a *Adapter) Get(key string) ([]byte, bool, error) {
	var value []byte
	var found bool

	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		a.logger.Error("badger read failed", "key", key, "error", err.Error())
		return nil, false, err
	}

	return value, found, nil
}

func (a *Adapter) Put(key string, value []byte) error {
	err := a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		a.logger.Error("badger write failed", "key", key, "error", err.Error())
		return err
	}
	a.logger.Debug("badger write", "key", key, "value_length", len(value))
	return nil
}

func (a *Adapter) Delete(key string) error {
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (a *Adapter) ListByPrefix(prefix string) ([]ports.KeyValue, error) {
	var results []ports.KeyValue

	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			results = append(results, ports.KeyValue{Key: string(key), Value: value})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.logger.Debug("storage list completed", "prefix", prefix, "count", len(results))
	return results, nil
}

func (a *Adapter) CountPrefix(prefix string) (int, error) {
	count := 0
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (a *Adapter) AtomicIncrement(key string) (int64, error) {
	var next int64

	err := a.db.Update(func(txn *badger.Txn) error {
		var current int64
		item, err := txn.Get([]byte(key))
		if err == nil {
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(raw) == 8 {
				current = int64(binary.BigEndian.Uint64(raw))
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		next = current + 1
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(next))
		return txn.Set([]byte(key), buf)
	})
	if err != nil {
		return 0, err
	}

	return next, nil
}

func (a *Adapter) Close() error {
	a.logger.Info("closing storage adapter")
	return a.db.Close()
}
