package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// KVModuleName is the name scripts use to reach [NewKVModule].
const KVModuleName = "kv"

var (
	ErrKVKeyTooLarge   = errors.New("key too large")
	ErrKVValueTooLarge = errors.New("value too large")
	ErrKVFull          = errors.New("store full")
)

// KVConfig limits what scripts may put into a [KVStore]. Zero means unlimited.
type KVConfig struct {
	MaxKeySize   int `yaml:"max_key_size" json:"max_key_size,omitempty" validate:"gte=0"`
	MaxValueSize int `yaml:"max_value_size" json:"max_value_size,omitempty" validate:"gte=0"`
	MaxEntries   int `yaml:"max_entries" json:"max_entries,omitempty" validate:"gte=0"`
}

func DefaultKVConfig() KVConfig {
	return KVConfig{
		MaxKeySize:   256,
		MaxValueSize: 1024 * 1024,
		MaxEntries:   10000,
	}
}

// KVStore is string-keyed state shared by host and scripts.
type KVStore struct {
	cfg  KVConfig
	data map[string]string
	mu   sync.RWMutex
}

func NewKVStore(cfg KVConfig) *KVStore {
	return &KVStore{cfg: cfg, data: make(map[string]string)}
}

// Get returns the stored value, the optional second argument when the key
// is missing, or nil.
func (s *KVStore) Get(ctx context.Context, args Args) (any, error) {
	if len(args) == 0 || len(args) > 2 {
		return nil, &ArgumentError{Index: -1, Reason: fmt.Sprintf("expected 1 or 2 argument(s), got %d", len(args))}
	}
	key, err := args.String(0)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	val, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		return args.Optional(1), nil
	}
	return val, nil
}

func (s *KVStore) Set(ctx context.Context, args Args) (any, error) {
	key, err := args.String(0)
	if err != nil {
		return nil, err
	}
	val, err := args.String(1)
	if err != nil {
		return nil, err
	}
	if s.cfg.MaxKeySize > 0 && len(key) > s.cfg.MaxKeySize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrKVKeyTooLarge, len(key), s.cfg.MaxKeySize)
	}
	if s.cfg.MaxValueSize > 0 && len(val) > s.cfg.MaxValueSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrKVValueTooLarge, len(val), s.cfg.MaxValueSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists && s.cfg.MaxEntries > 0 && len(s.data) >= s.cfg.MaxEntries {
		return nil, fmt.Errorf("%w: %d entries", ErrKVFull, s.cfg.MaxEntries)
	}
	s.data[key] = val
	return "ok", nil
}

func (s *KVStore) Delete(ctx context.Context, args Args) (any, error) {
	key, err := args.String(0)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()

	return "ok", nil
}

// Keys returns all keys, sorted.
func (s *KVStore) Keys(ctx context.Context, args Args) (any, error) {
	s.mu.RLock()
	keys := make([]any, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].(string) < keys[j].(string) })
	return keys, nil
}

// Lookup reads a value from the host side.
func (s *KVStore) Lookup(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Store writes a value from the host side, bypassing limits.
func (s *KVStore) Store(key, value string) {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
}

// NewKVModule exposes store to scripts as kv.get, kv.set, kv.delete and kv.keys.
func NewKVModule(store *KVStore) *Module {
	return MustModule(KVModuleName, "Key-value store shared with the host.",
		Entry{Name: "get", Arity: -1, Doc: "get(key[, default])", Fn: store.Get},
		Entry{Name: "set", Arity: 2, Doc: "set(key, value)", Fn: store.Set},
		Entry{Name: "delete", Arity: 1, Doc: "delete(key)", Fn: store.Delete},
		Entry{Name: "keys", Arity: 0, Doc: "keys() -> sorted list of keys", Fn: store.Keys},
	)
}
