// ABOUTME: Encrypted key/value store on a local BadgerDB
// ABOUTME: Values are sealed with XChaCha20-Poly1305; the key name is bound as additional data

package securestore

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgraph-io/badger/v3"
)

// ErrTampered is returned when a stored value fails authentication.
var ErrTampered = errors.New("stored value failed authentication")

// Options configures Open.
type Options struct {
	// Dir is the badger directory. Empty with InMemory set opens a memory-only store.
	Dir string
	// KeyFile holds the 32-byte device key, created on first use.
	KeyFile string
	// Passphrase is mixed into the derived key when set.
	Passphrase string
	InMemory   bool
	Logger     *log.Logger
}

// Store implements store.KV over an encrypted badger database.
type Store struct {
	db     *badger.DB
	sealer *sealer
	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the store described by opts.
func Open(opts Options) (*Store, error) {
	deviceKey, err := loadOrCreateDeviceKey(opts.KeyFile, opts.InMemory)
	if err != nil {
		return nil, err
	}
	s, err := newSealer(deviceKey, opts.Passphrase)
	if err != nil {
		return nil, err
	}

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Dir == "" {
			return nil, fmt.Errorf("secure store directory is required")
		}
		if err := os.MkdirAll(opts.Dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create secure store directory: %w", err)
		}
		bopts = badger.DefaultOptions(opts.Dir)
	}
	bopts = bopts.WithLogger(badgerLogger{logger: opts.Logger})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open secure store: %w", err)
	}

	return &Store{db: db, sealer: s}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Get returns the decrypted value at key.
func (s *Store) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sealed []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		sealed, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	plain, err := s.sealer.open(key, sealed)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", key, err)
	}
	return string(plain), true, nil
}

// Set encrypts value and stores it at key.
func (s *Store) Set(key, value string) error {
	sealed, err := s.sealer.seal(key, []byte(value))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), sealed)
	}); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Remove deletes key.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	}); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

// Keys returns every stored key.
func (s *Store) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

// putRaw writes bytes without sealing. Tests use it to simulate tampering.
func (s *Store) putRaw(key string, raw []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
}

// badgerLogger routes badger's chatter to the charm logger at debug level.
type badgerLogger struct {
	logger *log.Logger
}

func (b badgerLogger) l() *log.Logger {
	if b.logger != nil {
		return b.logger
	}
	return log.Default()
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.l().Errorf("badger: "+format, args...)
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.l().Warnf("badger: "+format, args...)
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.l().Debugf("badger: "+format, args...)
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.l().Debugf("badger: "+format, args...)
}
