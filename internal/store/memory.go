// internal/store/memory.go
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// MemoryStore is an in-process Store used by tests and single-process play.
// Change fan-out runs on a per-subscriber goroutine fed by a bounded queue,
// so a slow listener never blocks a writer.
type MemoryStore struct {
	mu     sync.Mutex
	docs   map[string]Document
	subs   map[string][]*memorySub
	nextID int
}

type memorySub struct {
	id       int
	ch       chan Document
	stop     chan struct{}
	onError  func(error)
	stopOnce sync.Once
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]Document),
		subs: make(map[string][]*memorySub),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, fields map[string]interface{}) error {
	doc, err := encodeFields(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[key] = doc
	s.publishLocked(key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, key string, fields map[string]interface{}) error {
	patch, err := encodeFields(fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	doc, ok := s.docs[key]
	if !ok {
		doc = make(Document)
		s.docs[key] = doc
	}
	for k, v := range patch {
		doc[k] = v
	}
	s.publishLocked(key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) AppendAtomic(ctx context.Context, key, field string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key]
	if !ok {
		doc = make(Document)
		s.docs[key] = doc
	}
	var arr []json.RawMessage
	if raw, ok := doc[field]; ok && string(raw) != "null" && len(raw) > 0 {
		if err := json.Unmarshal(raw, &arr); err != nil {
			return err
		}
	}
	for _, existing := range arr {
		if bytes.Equal(existing, data) {
			return nil // duplicate-safe
		}
	}
	arr = append(arr, json.RawMessage(data))
	encoded, err := json.Marshal(arr)
	if err != nil {
		return err
	}
	doc[field] = encoded
	s.publishLocked(key)
	return nil
}

func (s *MemoryStore) RemoveAtomic(ctx context.Context, key, field string, value interface{}) (int, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key]
	if !ok {
		return 0, nil
	}
	var arr []json.RawMessage
	if raw, ok := doc[field]; ok && string(raw) != "null" && len(raw) > 0 {
		if err := json.Unmarshal(raw, &arr); err != nil {
			return 0, err
		}
	}
	for i, existing := range arr {
		if bytes.Equal(existing, data) {
			arr = append(arr[:i], arr[i+1:]...)
			encoded, err := json.Marshal(arr)
			if err != nil {
				return 0, err
			}
			doc[field] = encoded
			s.publishLocked(key)
			break
		}
	}
	return len(arr), nil
}

func (s *MemoryStore) SetIfAbsent(ctx context.Context, key, field string, value interface{}) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key]
	if !ok {
		doc = make(Document)
		s.docs[key] = doc
	}
	raw, present := doc[field]
	if !isAbsent(raw, present) {
		return false, nil
	}
	doc[field] = data
	s.publishLocked(key)
	return true, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, key string, onChange func(Document), onError func(error)) (func(), error) {
	sub := &memorySub{
		ch:      make(chan Document, 128),
		stop:    make(chan struct{}),
		onError: onError,
	}
	s.mu.Lock()
	s.nextID++
	sub.id = s.nextID
	s.subs[key] = append(s.subs[key], sub)
	s.mu.Unlock()

	go func() {
		for {
			select {
			case doc := <-sub.ch:
				onChange(doc)
			case <-sub.stop:
				return
			}
		}
	}()

	unsubscribe := func() {
		sub.stopOnce.Do(func() { close(sub.stop) })
		s.mu.Lock()
		list := s.subs[key]
		for i, other := range list {
			if other.id == sub.id {
				s.subs[key] = append(list[:i], list[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}
	return unsubscribe, nil
}

// publishLocked fans the current document out to every subscriber of key.
// A full queue drops the change and reports it through the subscriber's
// onError, off the lock. Assumes lock is held.
func (s *MemoryStore) publishLocked(key string) {
	doc := s.docs[key].Clone()
	for _, sub := range s.subs[key] {
		select {
		case sub.ch <- doc:
		default:
			if sub.onError != nil {
				go sub.onError(fmt.Errorf("subscriber queue full for key %q, change dropped", key))
			} else {
				log.Printf("MemoryStore WARNING: subscriber queue full for key %q, dropping change", key)
			}
		}
	}
}
