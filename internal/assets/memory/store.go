// Package memory stores asset content in-memory for development and testing.
package memory

import (
	"context"
	"fmt"
	"sync"
)

type object struct {
	contentType string
	data        []byte
}

// Store keeps uploaded assets in process memory and returns pseudo URLs.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	putErr  error
}

// NewStore creates an empty in-memory asset store.
func NewStore() *Store {
	return &Store{objects: make(map[string]object)}
}

// Put copies the data and returns a memory:// URL.
func (s *Store) Put(_ context.Context, bucket, objectName, contentType string, data []byte) (string, error) {
	if bucket == "" || objectName == "" {
		return "", fmt.Errorf("bucket and object name are required")
	}
	key := bucket + "/" + objectName
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	s.objects[key] = object{
		contentType: contentType,
		data:        append([]byte(nil), data...),
	}
	return "memory://" + key, nil
}

// FailPuts makes every subsequent Put return err, for tests.
func (s *Store) FailPuts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putErr = err
}

// Object returns a stored asset and its content type, for tests.
func (s *Store) Object(bucket, objectName string) (data []byte, contentType string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[bucket+"/"+objectName]
	return o.data, o.contentType, ok
}

// Count returns how many objects the bucket holds, for tests.
func (s *Store) Count(bucket string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	prefix := bucket + "/"
	for key := range s.objects {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}
