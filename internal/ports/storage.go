package ports

type StoragePort interface {
	Get(key string) (value []byte, exists bool, err error)
	Put(key string, value []byte) error
	Delete(key string) error

	ListByPrefix(prefix string) ([]KeyValue, error)
	CountPrefix(prefix string) (int, error)

	// AtomicIncrement advances a counter key and returns the new value.
	// Counters start at 1.
	AtomicIncrement(key string) (int64, error)

	Close() error
}

type KeyValue struct {
	Key   string
	Value []byte
}
