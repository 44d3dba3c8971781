// Package dataio persists trajectories, nodesets and family catalogs.
//
// A Store is a badger database of records. Each record holds named numeric fields and implements
// the astrohelion FieldReader and FieldWriter interfaces, so that any trajectory or nodeset can be
// saved and loaded through it.
package dataio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	kitlog "github.com/go-kit/log"
	"github.com/google/uuid"
)

// ErrFieldNotFound is returned when reading a field which was never written.
var ErrFieldNotFound = errors.New("field not found")

// Config holds the settings of a store.
type Config struct {
	Path       string // Directory of the database, ignored in memory
	InMemory   bool
	SyncWrites bool
	Logger     kitlog.Logger // Badger logs are discarded when nil
}

// badgerLogger adapts a go-kit logger to the badger Logger interface.
type badgerLogger struct {
	logger kitlog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Log("level", "error", "msg", strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Log("level", "warning", "msg", strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Log("level", "info", "msg", strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Log("level", "debug", "msg", strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Store is a badger backed set of records. It is safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open opens the store described by the configuration.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("path is required for a persistent store")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{kitlog.With(cfg.Logger, "subsys", "badger")})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Store{db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(id uuid.UUID) []byte {
	return []byte("rec:" + id.String())
}

func fieldKey(id uuid.UUID, name string) []byte {
	return []byte("fld:" + id.String() + ":" + name)
}

// NewRecord creates a new record of the provided kind, e.g. "trajectory" or "nodeset".
func (s *Store) NewRecord(kind string) (*Record, error) {
	id := uuid.New()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(id), []byte(kind))
	})
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	return &Record{store: s, ID: id, Kind: kind}, nil
}

// Record returns the record of the provided identifier.
func (s *Store) Record(id uuid.UUID) (*Record, error) {
	r := &Record{store: s, ID: id}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(id))
		if err != nil {
			return err
		}
		kind, err := item.ValueCopy(nil)
		r.Kind = string(kind)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("no record %s", id)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Records returns the identifiers of all the records of a kind, or of all records if kind is empty.
func (s *Store) Records(kind string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("rec:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if kind != "" && string(val) != kind {
				continue
			}
			id, err := uuid.ParseBytes(bytes.TrimPrefix(item.Key(), prefix))
			if err != nil {
				return fmt.Errorf("corrupted record key %q: %w", item.Key(), err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	return ids, err
}

// Record is a set of named numeric fields.
type Record struct {
	store *Store
	ID    uuid.UUID
	Kind  string
}

// WriteField implements the astrohelion FieldWriter interface.
func (r *Record) WriteField(name string, data []float64) error {
	buf := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return r.store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(fieldKey(r.ID, name), buf)
	})
}

// ReadField implements the astrohelion FieldReader interface.
func (r *Record) ReadField(name string) ([]float64, error) {
	var buf []byte
	err := r.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fieldKey(r.ID, name))
		if err != nil {
			return err
		}
		buf, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s of record %s: %w", name, r.ID, ErrFieldNotFound)
	}
	if err != nil {
		return nil, err
	}
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("%s of record %s: corrupted field of %d bytes", name, r.ID, len(buf))
	}
	data := make([]float64, len(buf)/8)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return data, nil
}
