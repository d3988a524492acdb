package resilience

import (
	"fmt"
	"strings"
)

// Kind is the closed taxonomy every failure is classified into.
//
// The zero value is [KindUnknown] so an unset kind never leaks out of the package.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindServer
	KindClient
	KindCancelled
)

var kindNames = [...]string{
	KindUnknown:        "UNKNOWN",
	KindNetwork:        "NETWORK",
	KindValidation:     "VALIDATION",
	KindAuthentication: "AUTHENTICATION",
	KindAuthorization:  "AUTHORIZATION",
	KindNotFound:       "NOT_FOUND",
	KindServer:         "SERVER",
	KindClient:         "CLIENT",
	KindCancelled:      "CANCELLED",
}

// Kinds lists every [Kind] in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindUnknown, KindNetwork, KindValidation, KindAuthentication, KindAuthorization,
		KindNotFound, KindServer, KindClient, KindCancelled,
	}
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// ParseKind is the inverse of [Kind.String]. Matching is case-insensitive.
func ParseKind(s string) (Kind, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown error kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// KindSet is an immutable set of kinds stored as a bit mask.
type KindSet uint16

// NewKindSet builds a [KindSet] containing ks.
func NewKindSet(ks ...Kind) KindSet {
	var s KindSet
	for _, k := range ks {
		s |= 1 << uint(k)
	}
	return s
}

// Has reports whether k is in the set.
func (s KindSet) Has(k Kind) bool {
	return s&(1<<uint(k)) != 0
}

// With returns a copy of the set with ks added.
func (s KindSet) With(ks ...Kind) KindSet {
	return s | NewKindSet(ks...)
}

// Slice returns the members in declaration order.
func (s KindSet) Slice() []Kind {
	var out []Kind
	for _, k := range Kinds() {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s KindSet) String() string {
	names := make([]string, 0, len(kindNames))
	for _, k := range s.Slice() {
		names = append(names, k.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}
