package archive

import (
	"context"
	"sync"
)

// MemoryStore keeps objects in memory. Tests and local runs without a backend.
type MemoryStore struct {
	mu      sync.Mutex
	objects []Object
	creds   []string

	// Fail, when set, is returned by every Store call.
	Fail error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Store(ctx context.Context, obj Object, credential string) error {
	if err := obj.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storeErr(BackendMemory, obj.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Fail != nil {
		return storeErr(BackendMemory, obj.Name, s.Fail)
	}
	obj.Data = append([]byte(nil), obj.Data...)
	s.objects = append(s.objects, obj)
	s.creds = append(s.creds, credential)
	return nil
}

// Objects returns a copy of everything stored, in call order.
func (s *MemoryStore) Objects() []Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Object(nil), s.objects...)
}

// Credentials returns the credential passed with each stored object.
func (s *MemoryStore) Credentials() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.creds...)
}

// SetFail swaps the injected failure.
func (s *MemoryStore) SetFail(err error) {
	s.mu.Lock()
	s.Fail = err
	s.mu.Unlock()
}
