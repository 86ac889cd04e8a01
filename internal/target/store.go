// Package target keeps the tracked object's latest position and flight
// history and notifies subscribers on every update.
package target

import (
	"fmt"
	"sync"
	"time"

	"rockettrack/internal/geo"
)

type StoreConfig struct {
	// MaxHistory bounds memory use. When exceeded the oldest fixes are
	// dropped. Zero keeps everything.
	MaxHistory int
}

type Store struct {
	mu sync.RWMutex

	cfg StoreConfig

	current     geo.Position
	haveCurrent bool
	history     []geo.Position
	maxAltitude float64
	updatedAt   time.Time

	subs   map[int]func()
	nextID int
}

func NewStore(cfg StoreConfig) *Store {
	if cfg.MaxHistory < 0 {
		cfg.MaxHistory = 0
	}
	return &Store{
		cfg:  cfg,
		subs: make(map[int]func()),
	}
}

// Update records a new target fix and notifies subscribers outside the lock.
func (s *Store) Update(pos geo.Position) error {
	if s == nil {
		return fmt.Errorf("target: nil store")
	}
	if !pos.Valid() {
		return fmt.Errorf("target: invalid position lat=%v lon=%v", pos.Latitude, pos.Longitude)
	}
	if pos.Time.IsZero() {
		pos.Time = time.Now().UTC()
	}

	s.mu.Lock()
	if !s.haveCurrent || pos.Altitude > s.maxAltitude {
		s.maxAltitude = pos.Altitude
	}
	s.current = pos
	s.haveCurrent = true
	s.history = append(s.history, pos)
	if s.cfg.MaxHistory > 0 && len(s.history) > s.cfg.MaxHistory {
		drop := len(s.history) - s.cfg.MaxHistory
		s.history = append(s.history[:0:0], s.history[drop:]...)
	}
	s.updatedAt = pos.Time
	subs := s.subscribersLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
	return nil
}

// Clear forgets the current target and its history, e.g. between flights.
func (s *Store) Clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.current = geo.Position{}
	s.haveCurrent = false
	s.history = nil
	s.maxAltitude = 0
	s.updatedAt = time.Time{}
	subs := s.subscribersLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

func (s *Store) subscribersLocked() []func() {
	out := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

func (s *Store) TargetPosition() (geo.Position, bool) {
	if s == nil {
		return geo.Position{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.haveCurrent
}

// History returns a copy of the recorded fixes, oldest first.
func (s *Store) History() []geo.Position {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]geo.Position, len(s.history))
	copy(out, s.history)
	return out
}

// MaxAltitude is the highest altitude seen since the last Clear.
func (s *Store) MaxAltitude() float64 {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxAltitude
}

func (s *Store) UpdatedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

func (s *Store) Subscribe(fn func()) int {
	if s == nil || fn == nil {
		return -1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return id
}

func (s *Store) Unsubscribe(id int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}
