// Package store persists the viewer's own votes between sessions.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/sprite-ai/cmtree/internal/model"
)

const bucketVotes = "votes"

// ErrClosed is returned when the store is used after Close.
var ErrClosed = errors.New("vote store is closed")

// Store is a bbolt database of votes, one nested bucket per post.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the vote database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening vote store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketVotes))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing vote store: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return ErrClosed
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func key(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func unkey(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// Put records the vote for a comment of a post. A neutral vote removes
// the record.
func (s *Store) Put(post, comment int64, v model.Vote) error {
	if s.db == nil {
		return ErrClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(bucketVotes))
		if v == model.VoteNeutral {
			b := root.Bucket(key(post))
			if b == nil {
				return nil
			}
			return b.Delete(key(comment))
		}
		b, err := root.CreateBucketIfNotExists(key(post))
		if err != nil {
			return err
		}
		return b.Put(key(comment), []byte{byte(v)})
	})
}

// Votes returns every stored vote of a post.
func (s *Store) Votes(post int64) (model.Votes, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	votes := make(model.Votes)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketVotes)).Bucket(key(post))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if len(k) != 8 || len(v) != 1 {
				return fmt.Errorf("corrupt vote record in post %d", post)
			}
			votes[unkey(k)] = model.Vote(v[0])
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return votes, nil
}
