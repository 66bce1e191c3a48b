// Package hasher contains the default [domain.Hasher] implementation.
package hasher

import (
	"encoding/json"
	"reflect"

	"github.com/cespare/xxhash/v2"

	"github.com/go-embedb/embedb/domain"
)

// Hasher implements domain.Hasher.
type Hasher struct{}

func NewHasher() domain.Hasher {
	return &Hasher{}
}

// Hash implements domain.Hasher. Values are hashed by their JSON encoding,
// except pointers, channels and functions, which are hashed by address (nil
// ones hash like nil). Documents are always hashed by their JSON encoding.
func (h *Hasher) Hash(a any) (uint64, error) {
	if _, isDoc := a.(domain.Document); !isDoc {
		switch v := reflect.ValueOf(a); v.Kind() {
		case reflect.Pointer, reflect.Chan, reflect.Func:
			if v.IsNil() {
				a = nil
			} else {
				a = v.Pointer()
			}
		}
	}
	b, err := json.Marshal(a)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(b), nil
}
