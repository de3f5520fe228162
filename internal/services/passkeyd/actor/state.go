package actor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// State holds an actor's named fields in memory and mirrors every change to
// Storage. Updates are visible immediately; durable writes run in the
// background in the order they were issued and are awaited by Settle.
//
// State is only touched from the actor's unit of work, so the field map needs
// no locking. The write chain is shared with background goroutines.
type State struct {
	kind    string
	id      string
	storage Storage
	fields  map[string][]byte

	// writeCtx outlives the request that issued the write.
	writeCtx context.Context
	tail     chan struct{}
	pending  sync.WaitGroup

	errMu    sync.Mutex
	firstErr error
}

func newState(writeCtx context.Context, storage Storage, kind, id string) *State {
	return &State{
		kind:     kind,
		id:       id,
		storage:  storage,
		fields:   make(map[string][]byte),
		writeCtx: writeCtx,
	}
}

// Load reads the named fields from storage into memory.
func (s *State) Load(ctx context.Context, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	values, err := s.storage.LoadFields(ctx, s.kind, s.id, fields)
	if err != nil {
		return fmt.Errorf("load %s/%s: %w", s.kind, s.id, err)
	}
	for field, value := range values {
		s.fields[field] = value
	}
	return nil
}

// Has reports whether field is set.
func (s *State) Has(field string) bool {
	_, ok := s.fields[field]
	return ok
}

// Empty reports whether no field is set.
func (s *State) Empty() bool {
	return len(s.fields) == 0
}

// Get decodes field into dst and reports whether it was set.
func (s *State) Get(field string, dst any) (bool, error) {
	value, ok := s.fields[field]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(value, dst); err != nil {
		return true, fmt.Errorf("decode %s/%s field %s: %w", s.kind, s.id, field, err)
	}
	return true, nil
}

// Save sets field to the JSON encoding of value and schedules the write.
func (s *State) Save(field string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s field %s: %w", s.kind, s.id, field, err)
	}
	s.fields[field] = data
	s.schedule(func(ctx context.Context) error {
		return s.storage.PutField(ctx, s.kind, s.id, field, data)
	})
	return nil
}

// Delete removes field and schedules the delete.
func (s *State) Delete(field string) {
	if _, ok := s.fields[field]; !ok {
		return
	}
	delete(s.fields, field)
	s.schedule(func(ctx context.Context) error {
		return s.storage.DeleteField(ctx, s.kind, s.id, field)
	})
}

// Clear removes every field.
func (s *State) Clear() {
	s.fields = make(map[string][]byte)
	s.schedule(func(ctx context.Context) error {
		return s.storage.DeleteFields(ctx, s.kind, s.id)
	})
}

// Settle waits for every scheduled write and returns the first failure since
// the previous Settle.
func (s *State) Settle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("settle %s/%s: %w", s.kind, s.id, ctx.Err())
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	err := s.firstErr
	s.firstErr = nil
	return err
}

// schedule runs write after every previously scheduled write.
func (s *State) schedule(write func(ctx context.Context) error) {
	prev := s.tail
	done := make(chan struct{})
	s.tail = done

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		if err := write(s.writeCtx); err != nil {
			s.errMu.Lock()
			if s.firstErr == nil {
				s.firstErr = fmt.Errorf("persist %s/%s: %w", s.kind, s.id, err)
			}
			s.errMu.Unlock()
		}
	}()
}
