package cards

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDProvider issues unique identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// SequenceProvider issues prefix-1, prefix-2, ... and is safe for concurrent use.
type SequenceProvider struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequenceProvider constructs a deterministic provider.
func NewSequenceProvider(prefix string) *SequenceProvider {
	return &SequenceProvider{prefix: prefix}
}

func (p *SequenceProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("%s-%d", p.prefix, p.next), nil
}
