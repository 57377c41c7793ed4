package banstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memstore is a simple in-memory implementation of the Store interface,
// used in tests.
type Memstore struct {
	lk    sync.RWMutex
	bans  []BanRecord
	rooms map[string]bool
}

func NewMemstore() *Memstore {
	return &Memstore{
		rooms: make(map[string]bool),
	}
}

func (s *Memstore) findIndex(jid, nickname string) int {
	for i := range s.bans {
		r := &s.bans[i]
		if jid != "" && r.JID != "" && strings.EqualFold(r.JID, jid) {
			return i
		}
		if nickname != "" && r.Nickname != "" && strings.EqualFold(r.Nickname, nickname) {
			return i
		}
	}
	return -1
}

// findNicknameOnly matches records that carry a nickname but no JID yet.
func (s *Memstore) findNicknameOnly(nickname string) int {
	for i := range s.bans {
		r := &s.bans[i]
		if r.JID == "" && strings.EqualFold(r.Nickname, nickname) {
			return i
		}
	}
	return -1
}

func (s *Memstore) Upsert(ctx context.Context, rec BanRecord) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	var i int
	if rec.JID != "" {
		i = s.findIndex(rec.JID, "")
		// a record upgrading a nickname-only ban with a learned JID must
		// replace that ban, not sit next to it
		if i < 0 && rec.Nickname != "" {
			i = s.findNicknameOnly(rec.Nickname)
		}
	} else {
		i = s.findIndex("", rec.Nickname)
	}
	if i >= 0 {
		rec.CreatedAt = s.bans[i].CreatedAt
		s.bans[i] = rec
		return nil
	}
	s.bans = append(s.bans, rec)
	return nil
}

func (s *Memstore) Delete(ctx context.Context, jid, nickname string) (*BanRecord, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	i := s.findIndex(jid, nickname)
	if i < 0 {
		return nil, ErrNotFound
	}
	rec := s.bans[i]
	s.bans = append(s.bans[:i], s.bans[i+1:]...)
	return &rec, nil
}

func (s *Memstore) FindByJID(ctx context.Context, jid string) (*BanRecord, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	if i := s.findIndex(jid, ""); i >= 0 {
		rec := s.bans[i]
		return &rec, nil
	}
	return nil, ErrNotFound
}

func (s *Memstore) FindByNickname(ctx context.Context, nickname string) (*BanRecord, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	if i := s.findIndex("", nickname); i >= 0 {
		rec := s.bans[i]
		return &rec, nil
	}
	return nil, ErrNotFound
}

func (s *Memstore) ListAll(ctx context.Context) ([]BanRecord, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	out := make([]BanRecord, len(s.bans))
	copy(out, s.bans)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Memstore) ListExpired(ctx context.Context, now time.Time) ([]BanRecord, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	var out []BanRecord
	for _, r := range s.bans {
		if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Memstore) Search(ctx context.Context, substr string) ([]BanRecord, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	needle := strings.ToLower(substr)
	var out []BanRecord
	for _, r := range s.bans {
		if strings.Contains(strings.ToLower(r.JID), needle) ||
			strings.Contains(strings.ToLower(r.Nickname), needle) ||
			strings.Contains(strings.ToLower(r.Comment), needle) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Memstore) AddRoom(ctx context.Context, room string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.rooms[room] = true
	return nil
}

func (s *Memstore) RemoveRoom(ctx context.Context, room string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	delete(s.rooms, room)
	return nil
}

func (s *Memstore) ListRooms(ctx context.Context) ([]string, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()

	out := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		out = append(out, room)
	}
	sort.Strings(out)
	return out, nil
}

var _ Store = (*Memstore)(nil)
