package idgenerator

import (
	"github.com/google/uuid"

	"github.com/go-embedb/embedb/domain"
)

// UUIDGenerator implements [domain.IDGenerator] by deriving document ids
// from random UUIDs instead of raw random bytes. Selected via
// WithIDGenerator for callers that want ids to carry UUID structure (e.g.
// to interoperate with external systems that expect one), at the cost of
// ignoring the requested length beyond truncation.
type UUIDGenerator struct{}

// NewUUIDGenerator returns a new implementation of [domain.IDGenerator]
// backed by google/uuid.
func NewUUIDGenerator() domain.IDGenerator {
	return &UUIDGenerator{}
}

// GenerateID implements domain.IDGenerator. The dashless hex form of a
// random (v4) UUID is 32 characters long; the result is truncated to the
// requested length.
func (g *UUIDGenerator) GenerateID(l int) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	s := id.String()
	out := make([]byte, 0, len(s))
	for i := range s {
		if s[i] != '-' {
			out = append(out, s[i])
		}
	}
	if l > len(out) {
		l = len(out)
	}
	return string(out[:l]), nil
}
