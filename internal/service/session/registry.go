package session

import (
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/zhouzirui/claudio/internal/service/ai"
)

// Session is one audio conversation. Fields are fixed once stored; the
// remote side accumulates the turn history.
type Session struct {
	ID           string
	Conversation ai.Conversation
	// UploadedFile is set only when the audio was too large to send inline.
	UploadedFile *ai.FileRef
	CreatedAt    time.Time
}

// Config bounds the registry. Zero values mean no limit.
type Config struct {
	MaxSessions int
	// IdleTTL counts from the last Get, not from insertion.
	IdleTTL time.Duration
	// OnEvict runs outside the registry lock for every dropped session.
	OnEvict func(Session)
}

// NewID returns 8 random hexadecimal characters.
func NewID() string {
	return uuid.NewString()[:8]
}

type entry struct {
	session  Session
	lastUsed time.Time
}

// Registry maps session ids to sessions for the lifetime of the process.
type Registry struct {
	mu    sync.Mutex
	cfg   Config
	cache *simplelru.LRU[string, *entry]
	// evicted collects sessions dropped by the cache during one locked call.
	evicted []Session
	now     func() time.Time
	newID   func() string
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	r := &Registry{
		cfg:   cfg,
		now:   time.Now,
		newID: NewID,
	}

	size := cfg.MaxSessions
	if size <= 0 {
		size = math.MaxInt
	}
	// NewLRU only fails for a non-positive size.
	r.cache, _ = simplelru.NewLRU[string, *entry](size, func(_ string, e *entry) {
		r.evicted = append(r.evicted, e.session)
	})
	return r
}

// Insert stores s under a freshly generated id, drawing again if the id is
// already taken, and returns the stored session.
func (r *Registry) Insert(s Session) Session {
	r.mu.Lock()
	id := r.newID()
	for r.cache.Contains(id) {
		log.Printf("[session] id collision on %s, drawing again", id)
		id = r.newID()
	}
	s.ID = id
	s = r.putLocked(id, s)
	evicted := r.takeEvictedLocked()
	r.mu.Unlock()

	r.notify(evicted)
	return s
}

// Put stores s under id, replacing any existing entry.
func (r *Registry) Put(id string, s Session) {
	s.ID = id

	r.mu.Lock()
	r.putLocked(id, s)
	evicted := r.takeEvictedLocked()
	r.mu.Unlock()

	r.notify(evicted)
}

// Get looks up id and marks the session as used.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.Lock()
	r.expireLocked()
	e, ok := r.cache.Get(id)
	if ok {
		e.lastUsed = r.now()
	}
	evicted := r.takeEvictedLocked()
	r.mu.Unlock()

	r.notify(evicted)
	if !ok {
		return Session{}, false
	}
	return e.session, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}

func (r *Registry) putLocked(id string, s Session) Session {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.now()
	}
	// Replacing a key does not fire the eviction callback.
	r.cache.Add(id, &entry{session: s, lastUsed: r.now()})
	r.expireLocked()
	return s
}

// expireLocked drops idle sessions, oldest first. The cache's oldest entry is
// also the least recently used one, so the walk stops at the first live entry.
func (r *Registry) expireLocked() {
	if r.cfg.IdleTTL <= 0 {
		return
	}

	cutoff := r.now().Add(-r.cfg.IdleTTL)
	for {
		_, e, ok := r.cache.GetOldest()
		if !ok || e.lastUsed.After(cutoff) {
			return
		}
		r.cache.RemoveOldest()
	}
}

func (r *Registry) takeEvictedLocked() []Session {
	evicted := r.evicted
	r.evicted = nil
	return evicted
}

func (r *Registry) notify(evicted []Session) {
	for _, s := range evicted {
		log.Printf("[session] evicted session=%s created=%s", s.ID, s.CreatedAt.Format(time.RFC3339))
		if r.cfg.OnEvict != nil {
			r.cfg.OnEvict(s)
		}
	}
}
