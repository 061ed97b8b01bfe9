package smsverify

import (
	"errors"
	"sync"
	"time"
)

var errNoSession = errors.New("manager has no session store")

// SessionStore is the session of one client, as seen by a Manager.
type SessionStore interface {
	Get(key string) (value []byte, found bool, err error)
	Put(key string, value []byte) error
	Forget(key string) error
}

// SessionBackend stores the values of all sessions. Entries past their expiry time are
// treated as absent and removed by PurgeExpired.
type SessionBackend interface {
	Load(sid, key string, now time.Time) ([]byte, bool, error)
	Save(sid, key string, value []byte, expires time.Time) error
	Delete(sid, key string) error
	PurgeExpired(now time.Time) (int, error)
	Close() error
}

// NewSession binds backend to the session sid. Every Put extends the entry to now + lifetime.
func NewSession(backend SessionBackend, sid string, lifetime time.Duration) SessionStore {
	return &session{
		backend:  backend,
		sid:      sid,
		lifetime: lifetime,
		now:      time.Now,
	}
}

type session struct {
	backend  SessionBackend
	sid      string
	lifetime time.Duration
	now      func() time.Time
}

func (s *session) Get(key string) ([]byte, bool, error) {
	return s.backend.Load(s.sid, key, s.now())
}

func (s *session) Put(key string, value []byte) error {
	return s.backend.Save(s.sid, key, value, s.now().Add(s.lifetime))
}

func (s *session) Forget(key string) error {
	return s.backend.Delete(s.sid, key)
}

///////////////////////////////////////////////////////////////////////////////

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemorySessionBackend keeps sessions in process memory. Sessions are lost on restart.
type MemorySessionBackend struct {
	lock    sync.Mutex
	entries map[string]memoryEntry
}

func NewMemorySessionBackend() *MemorySessionBackend {
	return &MemorySessionBackend{entries: map[string]memoryEntry{}}
}

func (b *MemorySessionBackend) Load(sid, key string, now time.Time) ([]byte, bool, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	e, ok := b.entries[sessionEntryKey(sid, key)]
	if !ok || now.After(e.expires) {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (b *MemorySessionBackend) Save(sid, key string, value []byte, expires time.Time) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.entries[sessionEntryKey(sid, key)] = memoryEntry{
		value:   append([]byte(nil), value...),
		expires: expires,
	}
	return nil
}

func (b *MemorySessionBackend) Delete(sid, key string) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.entries, sessionEntryKey(sid, key))
	return nil
}

func (b *MemorySessionBackend) PurgeExpired(now time.Time) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	n := 0
	for k, e := range b.entries {
		if now.After(e.expires) {
			delete(b.entries, k)
			n++
		}
	}
	return n, nil
}

func (b *MemorySessionBackend) Close() error {
	return nil
}

func sessionEntryKey(sid, key string) string {
	return sid + "/" + key
}
