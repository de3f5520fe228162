package actor

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Storage persists actor fields and alarms, scoped by actor kind and id.
type Storage interface {
	LoadFields(ctx context.Context, kind, id string, fields []string) (map[string][]byte, error)
	PutField(ctx context.Context, kind, id, field string, value []byte) error
	DeleteField(ctx context.Context, kind, id, field string) error
	DeleteFields(ctx context.Context, kind, id string) error

	LoadAlarm(ctx context.Context, kind, id string) (Alarm, bool, error)
	PutAlarm(ctx context.Context, alarm Alarm) error
	DeleteAlarm(ctx context.Context, kind, id string) error
	ListAlarms(ctx context.Context, kind string) ([]Alarm, error)
}

// Alarm is a persisted one-shot wake-up for an actor.
type Alarm struct {
	Kind       string
	ID         string
	At         time.Time
	Generation uint64
}

type actorKey struct {
	kind string
	id   string
}

// MemoryStorage is an in-process Storage.
type MemoryStorage struct {
	mu     sync.Mutex
	fields map[actorKey]map[string][]byte
	alarms map[actorKey]Alarm
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		fields: make(map[actorKey]map[string][]byte),
		alarms: make(map[actorKey]Alarm),
	}
}

func (m *MemoryStorage) LoadFields(_ context.Context, kind, id string, fields []string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.fields[actorKey{kind, id}]
	out := make(map[string][]byte, len(fields))
	for _, field := range fields {
		if value, ok := stored[field]; ok {
			out[field] = append([]byte(nil), value...)
		}
	}
	return out, nil
}

func (m *MemoryStorage) PutField(_ context.Context, kind, id, field string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := actorKey{kind, id}
	if m.fields[key] == nil {
		m.fields[key] = make(map[string][]byte)
	}
	m.fields[key][field] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStorage) DeleteField(_ context.Context, kind, id, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fields[actorKey{kind, id}], field)
	return nil
}

func (m *MemoryStorage) DeleteFields(_ context.Context, kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fields, actorKey{kind, id})
	return nil
}

func (m *MemoryStorage) LoadAlarm(_ context.Context, kind, id string) (Alarm, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	alarm, ok := m.alarms[actorKey{kind, id}]
	return alarm, ok, nil
}

func (m *MemoryStorage) PutAlarm(_ context.Context, alarm Alarm) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alarms[actorKey{alarm.Kind, alarm.ID}] = alarm
	return nil
}

func (m *MemoryStorage) DeleteAlarm(_ context.Context, kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.alarms, actorKey{kind, id})
	return nil
}

func (m *MemoryStorage) ListAlarms(_ context.Context, kind string) ([]Alarm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Alarm
	for key, alarm := range m.alarms {
		if key.kind == kind {
			out = append(out, alarm)
		}
	}
	return out, nil
}

// Snapshot returns a copy of the stored fields for one actor.
func (m *MemoryStorage) Snapshot(kind, id string) map[string][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.fields[actorKey{kind, id}])
}
