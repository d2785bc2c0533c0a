// Package boltstore persists world snapshots in a bbolt database: every
// object (properties, verbs and compiled programs included), the player
// set, and enough metadata to reinstate the object array exactly.
package boltstore

import (
	"fmt"
	"log"

	bbolt "go.etcd.io/bbolt"

	"github.com/kruton/etamoo/pkg/gamedb"
	"github.com/kruton/etamoo/pkg/value"
)

// Store wraps a bbolt database holding world snapshots.
type Store struct {
	bolt *bbolt.DB
}

// Open opens or creates a bbolt database file and ensures all buckets
// exist.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketObjects, bucketPlayers} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("boltstore: create buckets: %w", err)
	}
	return &Store{bolt: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the filesystem path of the underlying database.
func (s *Store) Path() string {
	if s.bolt != nil {
		return s.bolt.Path()
	}
	return ""
}

// HasData reports whether a snapshot has ever been written.
func (s *Store) HasData() bool {
	has := false
	s.bolt.View(func(tx *bbolt.Tx) error {
		has = tx.Bucket(bucketMeta).Get(keyMaxObject) != nil
		return nil
	})
	return has
}

// SaveWorld writes a complete snapshot in one bbolt transaction. The
// caller holds the world lock, so the image is consistent.
func (s *Store) SaveWorld(w *gamedb.World) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		// Rewrite from scratch: holes must disappear from the buckets too.
		for _, name := range [][]byte{bucketObjects, bucketPlayers} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		objs := tx.Bucket(bucketObjects)
		players := tx.Bucket(bucketPlayers)
		meta := tx.Bucket(bucketMeta)

		maxObj := w.MaxObject()
		for id := value.Obj(0); id <= maxObj; id++ {
			o := w.Get(id)
			if o == nil {
				continue
			}
			data, err := encodeObject(o)
			if err != nil {
				return fmt.Errorf("boltstore: encode object #%d: %w", id, err)
			}
			if err := objs.Put(refToKey(id), data); err != nil {
				return err
			}
		}
		for _, p := range w.Players() {
			if err := players.Put(refToKey(p), []byte{1}); err != nil {
				return err
			}
		}
		if err := meta.Put(keyMaxObject, intToKey(int64(maxObj))); err != nil {
			return err
		}
		return meta.Put(keyVersion, intToKey(formatVersion))
	})
}

// LoadWorld reinstates a snapshot into a fresh world.
func (s *Store) LoadWorld() (*gamedb.World, error) {
	w := gamedb.NewWorld()
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(keyVersion); v != nil && keyToInt(v) != formatVersion {
			return fmt.Errorf("boltstore: unsupported snapshot version %d", keyToInt(v))
		}
		if v := meta.Get(keyMaxObject); v != nil {
			w.EnsureSize(value.Obj(keyToInt(v)))
		}
		count := 0
		err := tx.Bucket(bucketObjects).ForEach(func(k, v []byte) error {
			obj, err := decodeObject(v)
			if err != nil {
				return fmt.Errorf("boltstore: decode object #%d: %w", keyToRef(k), err)
			}
			w.AddObjectAt(obj)
			count++
			return nil
		})
		if err != nil {
			return err
		}
		err = tx.Bucket(bucketPlayers).ForEach(func(k, v []byte) error {
			w.SetPlayer(keyToRef(k), true)
			return nil
		})
		if err != nil {
			return err
		}
		log.Printf("Database loaded: %d objects, %d players", count, len(w.Players()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.LoadOptions()
	return w, nil
}

