// Package claims maps payload objects to and from the claim set carried by a token.
//
// A payload type takes part by implementing Extractor (which claims it exposes and
// their current values) and Injector (how to rebuild itself from a claim set). Only
// the claims a type returns from TokenClaims are ever written, and only the fields
// it reads back in ApplyClaims are ever assigned. Every claim value travels as its
// JSON encoding.
//
//	type Session struct {
//		UserID string
//		Roles  []string
//		cached bool // not a claim
//	}
//
//	func (s Session) TokenClaims() map[string]any {
//		return map[string]any{"userId": s.UserID, "roles": s.Roles}
//	}
//
//	func (s *Session) ApplyClaims(set claims.Set) error {
//		if _, err := set.Decode("userId", &s.UserID); err != nil {
//			return err
//		}
//		_, err := set.Decode("roles", &s.Roles)
//		return err
//	}
package claims

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"sort"

	"github.com/turtacn/trustkit/pkg/constants"
	"github.com/turtacn/trustkit/pkg/errors"
)

// Extractor is implemented by payloads that can be turned into claims.
type Extractor interface {
	// TokenClaims returns the claim name to value mapping of the payload.
	TokenClaims() map[string]any
}

// Injector is implemented by pointer types that can be rebuilt from claims.
type Injector interface {
	// ApplyClaims assigns the claims present in set to the receiver.
	// Claims missing from set must leave the corresponding field untouched.
	ApplyClaims(set Set) error
}

// Set maps claim names to JSON-encoded values.
type Set map[string]string

// Extract serializes every claim exposed by payload.
func Extract(payload Extractor) (Set, error) {
	if isNil(payload) {
		return nil, errors.ErrMissingRequiredParameter("payload")
	}

	values := payload.TokenClaims()
	set := make(Set, len(values))
	for name, value := range values {
		if name == "" {
			return nil, errors.ErrInvalidArgument("claim name cannot be empty")
		}
		if IsReserved(name) {
			return nil, errors.ErrInvalidArgument(fmt.Sprintf("claim name %q is reserved", name)).
				WithMetadata("claim", name)
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, errors.ErrSerialization(fmt.Sprintf("failed to encode claim %q", name)).
				WithCause(err).
				WithMetadata("claim", name)
		}
		set[name] = string(encoded)
	}
	return set, nil
}

// Inject assigns the claims in set to target.
func Inject(set Set, target Injector) error {
	if isNil(target) {
		return errors.ErrInstantiation("claim target cannot be nil")
	}
	if err := target.ApplyClaims(set); err != nil {
		if _, ok := errors.AsTrustError(err); ok {
			return err
		}
		return errors.ErrSerialization("failed to apply claims").WithCause(err)
	}
	return nil
}

// New builds a zero-valued T and injects set into it.
func New[T any, PT interface {
	*T
	Injector
}](set Set) (*T, error) {
	target := new(T)
	if err := Inject(set, PT(target)); err != nil {
		return nil, err
	}
	return target, nil
}

// Has reports whether the claim is present.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Decode unmarshals the named claim into dst, which must be a non-nil pointer.
// It reports false without touching dst when the claim is absent.
func (s Set) Decode(name string, dst any) (bool, error) {
	raw, ok := s[name]
	if !ok {
		return false, nil
	}
	if isNil(dst) || reflect.TypeOf(dst).Kind() != reflect.Pointer {
		return false, errors.ErrInvalidArgument(fmt.Sprintf("destination for claim %q must be a non-nil pointer", name))
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return true, errors.ErrSerialization(fmt.Sprintf("failed to decode claim %q", name)).
			WithCause(err).
			WithMetadata("claim", name)
	}
	return true, nil
}

// Names returns the claim names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsReserved reports whether name is a registered claim managed by the token service.
func IsReserved(name string) bool {
	return slices.Contains(constants.ReservedClaims, name)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
