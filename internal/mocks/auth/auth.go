package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"errors"
	"strings"
	"sync"

	"github.com/target/tokengate/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.PasswordHasher = (*PlainHasher)(nil)
	_ ports.MetricsSink    = (*RecordingMetrics)(nil)
)

const plainPrefix = "plain:"

// PlainHasher "hashes" by prefixing the plaintext. It keeps service tests fast and readable.
type PlainHasher struct {
	HashFunc   func(plaintext string) (string, error)
	VerifyFunc func(plaintext, hash string) bool
}

func (h *PlainHasher) Hash(plaintext string) (string, error) {
	if h.HashFunc != nil {
		return h.HashFunc(plaintext)
	}
	if plaintext == "" {
		return "", errors.New("empty password")
	}
	return plainPrefix + plaintext, nil
}

func (h *PlainHasher) Verify(plaintext, hash string) bool {
	if h.VerifyFunc != nil {
		return h.VerifyFunc(plaintext, hash)
	}
	return strings.HasPrefix(hash, plainPrefix) && hash[len(plainPrefix):] == plaintext
}

// RecordingMetrics stores every counter increment for later assertions.
type RecordingMetrics struct {
	mu     sync.Mutex
	counts []Count
}

// Count is one recorded increment.
type Count struct {
	Name  string
	Value int64
	Tags  map[string]string
}

func (m *RecordingMetrics) Count(name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]string, len(tags))
	for k, v := range tags {
		cp[k] = v
	}
	m.counts = append(m.counts, Count{Name: name, Value: value, Tags: cp})
}

// Total sums increments of name whose tag key equals value.
func (m *RecordingMetrics) Total(name, key, value string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.counts {
		if c.Name == name && c.Tags[key] == value {
			n += c.Value
		}
	}
	return n
}

// Counts returns a copy of everything recorded.
func (m *RecordingMetrics) Counts() []Count {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Count(nil), m.counts...)
}
