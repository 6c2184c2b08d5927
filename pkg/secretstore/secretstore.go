// Package secretstore keeps exchange API credentials encrypted at rest in a
// Badger database. Encryption comes from Badger's value log + key registry
// options, not from this wrapper.
package secretstore

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

const credentialPrefix = "credential/"

type Store struct {
	db *badger.DB
}

type OpenOptions struct {
	Path          string
	EncryptionKey []byte // 32 bytes; nil opens the DB unencrypted (not recommended)
	ReadOnly      bool
}

func Open(opts OpenOptions) (*Store, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return nil, errors.New("secretstore: path is required")
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(nil).
		WithReadOnly(opts.ReadOnly)
	if len(opts.EncryptionKey) > 0 {
		// Badger requires an index cache for encrypted workloads
		bopts = bopts.
			WithEncryptionKey(opts.EncryptionKey).
			WithIndexCacheSize(100 << 20)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Credentials for one exchange account.
type Credentials struct {
	Exchange  string `json:"exchange"` // e.g. "binance"
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

func credentialKey(exchange, label string) ([]byte, error) {
	exchange = strings.TrimSpace(strings.ToLower(exchange))
	label = strings.TrimSpace(label)
	if exchange == "" || label == "" {
		return nil, errors.New("secretstore: exchange and label are required")
	}
	return []byte(credentialPrefix + exchange + "/" + label), nil
}

// PutCredentials stores credentials under exchange/label.
func (s *Store) PutCredentials(exchange, label string, creds Credentials) error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: not opened")
	}
	key, err := credentialKey(exchange, label)
	if err != nil {
		return err
	}
	creds.Exchange = strings.ToLower(exchange)
	val, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// GetCredentials looks up exchange/label. The bool reports whether the entry
// exists.
func (s *Store) GetCredentials(exchange, label string) (Credentials, bool, error) {
	var creds Credentials
	if s == nil || s.db == nil {
		return creds, false, errors.New("secretstore: not opened")
	}
	key, err := credentialKey(exchange, label)
	if err != nil {
		return creds, false, err
	}
	found := false
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &creds)
		})
	})
	if err != nil {
		return Credentials{}, false, err
	}
	return creds, found, nil
}

// DeleteCredentials removes exchange/label. Deleting a missing entry is not
// an error.
func (s *Store) DeleteCredentials(exchange, label string) error {
	if s == nil || s.db == nil {
		return errors.New("secretstore: not opened")
	}
	key, err := credentialKey(exchange, label)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// ListLabels returns the stored labels for one exchange.
func (s *Store) ListLabels(exchange string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("secretstore: not opened")
	}
	prefix := []byte(credentialPrefix + strings.TrimSpace(strings.ToLower(exchange)) + "/")
	var labels []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			labels = append(labels, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return labels, nil
}

// ParseKey expects 32 bytes as hex (with optional 0x) or base64. Empty input
// returns nil, nil.
func ParseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	rawHex := strings.TrimPrefix(raw, "0x")
	if b, err := hex.DecodeString(rawHex); err == nil {
		if len(b) == 32 {
			return b, nil
		}
		return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if len(b) != 32 {
			return nil, fmt.Errorf("decoded key length must be 32, got %d", len(b))
		}
		return b, nil
	}
	return nil, errors.New("key must be base64(32 bytes) or hex(32 bytes)")
}
