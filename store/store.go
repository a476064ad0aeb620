// Package store persists scorer models in a badger database.
//
// A neighborhood model is stored once under its id and shared by every
// named model built on it; potentials and metadata are stored per name:
//
//	nbh/<id>     msgpack NeighborhoodModel
//	pot/<name>   msgpack potentials
//	meta/<name>  msgpack Meta
package store

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	density "github.com/knime/knime-activelearning-sub000"
)

// ErrNotFound is returned for names that are not in the store.
var ErrNotFound = errors.New("store: model not found")

// ErrModelMismatch is returned by SavePotentials when the stored model under
// a name was built on a different neighborhood model.
var ErrModelMismatch = errors.New("store: stored model has a different neighborhood")

const (
	prefixNeighborhood = "nbh/"
	prefixPotentials   = "pot/"
	prefixMeta         = "meta/"
)

// Meta describes a stored model.
type Meta struct {
	Name           string   `msgpack:"name"`
	NeighborhoodID string   `msgpack:"nbh_id"`
	Rows           int      `msgpack:"rows"`
	NrFeatures     int      `msgpack:"nr_features"`
	Features       []string `msgpack:"features"`
}

// Store is a badger-backed model store. It is safe for concurrent use.
type Store struct {
	db    *badger.DB
	cache *density.ModelCache
}

// Open opens or creates a store in dir. cacheSize bounds the number of
// decoded neighborhood models kept in memory; <= 0 selects the default.
func Open(dir string, cacheSize int) (*Store, error) {
	return open(badger.DefaultOptions(dir).WithLogger(nil), cacheSize)
}

// OpenInMemory opens a store that lives in memory only.
func OpenInMemory(cacheSize int) (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil), cacheSize)
}

func open(opts badger.Options, cacheSize int) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db, cache: density.NewModelCache(cacheSize)}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Save stores model under name, replacing whatever was stored under it.
func (s *Store) Save(name string, model *density.ScorerModel) error {
	nm := model.NeighborhoodModel()
	nbhBlob, err := density.MarshalNeighborhoodModel(nm)
	if err != nil {
		return err
	}
	potBlob, err := density.MarshalPotentials(model.Potentials())
	if err != nil {
		return err
	}
	metaBlob, err := msgpack.Marshal(&Meta{
		Name:           name,
		NeighborhoodID: nm.ID().String(),
		Rows:           model.NrRows(),
		NrFeatures:     model.NrFeatures(),
		Features:       model.Features(),
	})
	if err != nil {
		return err
	}

	var previous *Meta
	err = s.db.Update(func(txn *badger.Txn) error {
		var err error
		previous, err = getMeta(txn, name)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		nbhKey := []byte(prefixNeighborhood + nm.ID().String())
		if _, err := txn.Get(nbhKey); errors.Is(err, badger.ErrKeyNotFound) {
			if err := txn.Set(nbhKey, nbhBlob); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		if err := txn.Set([]byte(prefixPotentials+name), potBlob); err != nil {
			return err
		}
		return txn.Set([]byte(prefixMeta+name), metaBlob)
	})
	if err != nil {
		return fmt.Errorf("store: saving %q: %w", name, err)
	}
	s.cache.Put(nm)
	if previous != nil && previous.NeighborhoodID != nm.ID().String() {
		return s.dropUnreferenced(previous.NeighborhoodID)
	}
	return nil
}

// SavePotentials stores the current potentials of model under name. The
// neighborhood model stored under name must be the one of model.
func (s *Store) SavePotentials(name string, model *density.ScorerModel) error {
	potBlob, err := density.MarshalPotentials(model.Potentials())
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		meta, err := getMeta(txn, name)
		if err != nil {
			return err
		}
		if meta.NeighborhoodID != model.ID().String() {
			return ErrModelMismatch
		}
		return txn.Set([]byte(prefixPotentials+name), potBlob)
	})
	if err != nil {
		return fmt.Errorf("store: saving potentials of %q: %w", name, err)
	}
	return nil
}

// Load restores the model stored under name. The neighborhood model is
// decoded at most once while it stays in the cache.
func (s *Store) Load(name string) (*density.ScorerModel, error) {
	var (
		meta       *Meta
		potentials []float64
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		if meta, err = getMeta(txn, name); err != nil {
			return err
		}
		item, err := txn.Get([]byte(prefixPotentials + name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			potentials, err = density.UnmarshalPotentials(val)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: loading %q: %w", name, err)
	}

	id, err := uuid.Parse(meta.NeighborhoodID)
	if err != nil {
		return nil, fmt.Errorf("store: loading %q: %w: %v", name, density.ErrCorruptModel, err)
	}
	nm, err := s.cache.Get(id, func() (*density.NeighborhoodModel, error) {
		return s.loadNeighborhood(id)
	})
	if err != nil {
		return nil, fmt.Errorf("store: loading %q: %w", name, err)
	}
	features := meta.Features
	if len(features) == 0 {
		features = nil
	}
	return density.NewScorerModel(potentials, nm, meta.NrFeatures, features)
}

// Info returns the metadata stored under name.
func (s *Store) Info(name string) (Meta, error) {
	var meta *Meta
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		meta, err = getMeta(txn, name)
		return err
	})
	if err != nil {
		return Meta{}, err
	}
	return *meta, nil
}

// Delete removes the model stored under name. Its neighborhood model is
// removed as well once no other name refers to it.
func (s *Store) Delete(name string) error {
	var meta *Meta
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		if meta, err = getMeta(txn, name); err != nil {
			return err
		}
		if err := txn.Delete([]byte(prefixPotentials + name)); err != nil {
			return err
		}
		return txn.Delete([]byte(prefixMeta + name))
	})
	if err != nil {
		return fmt.Errorf("store: deleting %q: %w", name, err)
	}
	return s.dropUnreferenced(meta.NeighborhoodID)
}

// Names returns the stored model names in key order.
func (s *Store) Names() ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixMeta)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), prefixMeta))
		}
		return nil
	})
	return names, err
}

func (s *Store) loadNeighborhood(id uuid.UUID) (*density.NeighborhoodModel, error) {
	var nm *density.NeighborhoodModel
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixNeighborhood + id.String()))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: neighborhood model %s is missing", density.ErrCorruptModel, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			nm, err = density.UnmarshalNeighborhoodModel(val)
			return err
		})
	})
	return nm, err
}

// dropUnreferenced deletes the neighborhood model id if no stored name
// refers to it anymore.
func (s *Store) dropUnreferenced(id string) error {
	removed := false
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixMeta)
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			var meta Meta
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &meta)
			}); err != nil {
				it.Close()
				return err
			}
			if meta.NeighborhoodID == id {
				it.Close()
				return nil
			}
		}
		it.Close()
		removed = true
		return txn.Delete([]byte(prefixNeighborhood + id))
	})
	if err != nil {
		return fmt.Errorf("store: removing neighborhood model %s: %w", id, err)
	}
	if removed {
		if parsed, err := uuid.Parse(id); err == nil {
			s.cache.Remove(parsed)
		}
		log.Printf("store: removed unreferenced neighborhood model %s", id)
	}
	return nil
}

func getMeta(txn *badger.Txn, name string) (*Meta, error) {
	item, err := txn.Get([]byte(prefixMeta + name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &meta)
	}); err != nil {
		return nil, fmt.Errorf("%w: metadata of %q: %v", density.ErrCorruptModel, name, err)
	}
	return &meta, nil
}
