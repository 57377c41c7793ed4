package muc

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MockClient is an in-memory Client for tests. It tracks joined rooms and
// per-room affiliation state, records every role change and message, and can
// be scripted to fail specific calls. It also measures the maximum number of
// concurrently in-flight mutating calls, so tests can assert the engine's
// concurrency bound.
type MockClient struct {
	mu sync.Mutex

	joined       map[string]bool
	affiliations map[string]map[string]Affiliation // room -> bare jid -> affiliation
	roleChanges  []RoleChange
	messages     []Message

	// FailAffiliation and FailRole return an error to inject for a given
	// call, or nil to let it succeed. Optional.
	FailAffiliation func(room, jid string, aff Affiliation) error
	FailRole        func(room, nickname string, role Role) error

	// CallDelay pauses each mutating call, forcing overlap so concurrency
	// measurements are meaningful.
	CallDelay time.Duration

	inflight    int
	maxInflight int
}

type RoleChange struct {
	Room     string
	Nickname string
	Role     Role
}

type Message struct {
	Room string
	Body string
}

func NewMockClient() *MockClient {
	return &MockClient{
		joined:       make(map[string]bool),
		affiliations: make(map[string]map[string]Affiliation),
	}
}

func (m *MockClient) enter() {
	m.mu.Lock()
	m.inflight++
	if m.inflight > m.maxInflight {
		m.maxInflight = m.inflight
	}
	delay := m.CallDelay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
}

func (m *MockClient) exit() {
	m.mu.Lock()
	m.inflight--
	m.mu.Unlock()
}

func (m *MockClient) JoinRoom(ctx context.Context, room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joined[room] = true
	return nil
}

func (m *MockClient) LeaveRoom(ctx context.Context, room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.joined, room)
	return nil
}

func (m *MockClient) SetAffiliation(ctx context.Context, room, jid string, aff Affiliation) error {
	m.enter()
	defer m.exit()

	if f := m.FailAffiliation; f != nil {
		if err := f(room, jid, aff); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	affs, ok := m.affiliations[room]
	if !ok {
		affs = make(map[string]Affiliation)
		m.affiliations[room] = affs
	}
	if aff == AffiliationNone {
		delete(affs, strings.ToLower(Bare(jid)))
	} else {
		affs[strings.ToLower(Bare(jid))] = aff
	}
	return nil
}

func (m *MockClient) SetRole(ctx context.Context, room, nickname string, role Role) error {
	m.enter()
	defer m.exit()

	if f := m.FailRole; f != nil {
		if err := f(room, nickname, role); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.roleChanges = append(m.roleChanges, RoleChange{Room: room, Nickname: nickname, Role: role})
	return nil
}

func (m *MockClient) ListByAffiliation(ctx context.Context, room string, aff Affiliation) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for jid, a := range m.affiliations[room] {
		if a == aff {
			out = append(out, jid)
		}
	}
	return out, nil
}

func (m *MockClient) SendMessage(ctx context.Context, room, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Message{Room: room, Body: body})
	return nil
}

// SeedAffiliation sets room-level affiliation state directly, bypassing the
// failure hooks. For arranging test fixtures.
func (m *MockClient) SeedAffiliation(room, jid string, aff Affiliation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	affs, ok := m.affiliations[room]
	if !ok {
		affs = make(map[string]Affiliation)
		m.affiliations[room] = affs
	}
	affs[strings.ToLower(Bare(jid))] = aff
}

// Affiliation reports the recorded affiliation for a bare JID in a room.
func (m *MockClient) Affiliation(room, jid string) Affiliation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.affiliations[room][strings.ToLower(Bare(jid))]; ok {
		return a
	}
	return AffiliationNone
}

// Joined reports whether the client has joined the room.
func (m *MockClient) Joined(room string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.joined[room]
}

// RoleChanges returns a copy of all recorded role changes.
func (m *MockClient) RoleChanges() []RoleChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RoleChange, len(m.roleChanges))
	copy(out, m.roleChanges)
	return out
}

// Messages returns a copy of all recorded groupchat messages.
func (m *MockClient) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// MaxInflight returns the maximum number of mutating calls that were in
// flight at the same time.
func (m *MockClient) MaxInflight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInflight
}

var _ Client = (*MockClient)(nil)
