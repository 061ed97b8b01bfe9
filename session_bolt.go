package smsverify

import (
	"time"

	"github.com/boltdb/bolt"
	jsoniter "github.com/json-iterator/go"
)

const bucketSession = "session"

type boltEntry struct {
	Value   []byte
	Expires time.Time
}

// BoltSessionBackend keeps sessions in a single bolt file, so they survive a restart
// without needing a database server.
type BoltSessionBackend struct {
	db *bolt.DB
}

func OpenBoltSessionBackend(filename string) (*BoltSessionBackend, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketSession))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltSessionBackend{db: db}, nil
}

func (b *BoltSessionBackend) Load(sid, key string, now time.Time) (value []byte, found bool, err error) {
	err = b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bucketSession)).Get([]byte(sessionEntryKey(sid, key)))
		if raw == nil {
			return nil
		}
		var e boltEntry
		if err := jsoniter.Unmarshal(raw, &e); err != nil {
			return err
		}
		if now.After(e.Expires) {
			return nil
		}
		value, found = e.Value, true
		return nil
	})
	return value, found, err
}

func (b *BoltSessionBackend) Save(sid, key string, value []byte, expires time.Time) error {
	raw, err := jsoniter.Marshal(boltEntry{Value: value, Expires: expires})
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSession)).Put([]byte(sessionEntryKey(sid, key)), raw)
	})
}

func (b *BoltSessionBackend) Delete(sid, key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketSession)).Delete([]byte(sessionEntryKey(sid, key)))
	})
}

func (b *BoltSessionBackend) PurgeExpired(now time.Time) (int, error) {
	n := 0
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(bucketSession))
		var expired [][]byte
		err := bkt.ForEach(func(k, v []byte) error {
			var e boltEntry
			if err := jsoniter.Unmarshal(v, &e); err != nil || now.After(e.Expires) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := bkt.Delete(k); err != nil {
				return err
			}
		}
		n = len(expired)
		return nil
	})
	return n, err
}

func (b *BoltSessionBackend) Close() error {
	return b.db.Close()
}
