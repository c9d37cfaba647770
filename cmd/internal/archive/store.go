package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Backend names accepted by configuration.
const (
	BackendHTTP     = "http"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
	BackendDir      = "dir"
	BackendMemory   = "memory"
)

var (
	// ErrMissingCredential is returned before any store call when no credential is set.
	ErrMissingCredential = errors.New("archive: missing credential")
	// ErrRejected means the backend answered but refused the object.
	ErrRejected = errors.New("archive: rejected by store")
	// ErrInvalidObject is returned for objects without a usable name or payload.
	ErrInvalidObject = errors.New("archive: invalid object")
	// ErrUnknownBackend is returned by ParseBackend.
	ErrUnknownBackend = errors.New("archive: unknown backend")

	errNilStore = errors.New("nil store")
)

// Object is one encoded image ready for storage.
type Object struct {
	Name        string
	ContentType string
	Data        []byte
	// Digest is the hex BLAKE2b-256 of Data.
	Digest string
}

func (o Object) validate() error {
	if strings.TrimSpace(o.Name) == "" || strings.ContainsAny(o.Name, `/\`) {
		return fmt.Errorf("%w: bad name %q", ErrInvalidObject, o.Name)
	}
	if len(o.Data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidObject)
	}
	return nil
}

// Store persists archived objects. Implementations must be safe for concurrent use.
type Store interface {
	Store(ctx context.Context, obj Object, credential string) error
}

// StoreError wraps a backend failure with the object it concerned.
type StoreError struct {
	Backend string
	Name    string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("archive: %s store %q: %v", e.Backend, e.Name, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(backend, name string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Backend: backend, Name: name, Err: err}
}

// ParseBackend normalizes a backend name. Empty selects BackendHTTP.
func ParseBackend(s string) (string, error) {
	switch b := strings.ToLower(strings.TrimSpace(s)); b {
	case "":
		return BackendHTTP, nil
	case BackendHTTP, BackendGCS, BackendPostgres, BackendDir, BackendMemory:
		return b, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}
