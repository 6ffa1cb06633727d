// Package parcel describes the typed data parcels that participants publish
// and subscribe to.
package parcel

import (
	"errors"
	"fmt"
	"strings"
)

// Wildcard matches any value in a mask field.
const Wildcard = "*"

// ErrMalformedDescriptor is returned when a descriptor string cannot be parsed
var ErrMalformedDescriptor = errors.New("malformed type descriptor")

// TypeDescriptor identifies the type of a data parcel. When used as a mask,
// empty or "*" fields match anything.
type TypeDescriptor struct {
	Domain      string `json:"domain" validate:"required"`
	Category    string `json:"category,omitempty"`
	Subcategory string `json:"subcategory,omitempty"`
	Resource    string `json:"resource,omitempty"`
	Version     string `json:"version,omitempty"`
}

// String renders domain/category/subcategory/resource@version, using "*" for
// unset fields.
func (d TypeDescriptor) String() string {
	parts := []string{or(d.Domain), or(d.Category), or(d.Subcategory), or(d.Resource)}
	return strings.Join(parts, "/") + "@" + or(d.Version)
}

// IsZero reports whether no field is set.
func (d TypeDescriptor) IsZero() bool {
	return d == TypeDescriptor{}
}

// IsWildcard reports whether d matches every descriptor.
func (d TypeDescriptor) IsWildcard() bool {
	return wild(d.Domain) && wild(d.Category) && wild(d.Subcategory) && wild(d.Resource) && wild(d.Version)
}

// Matches reports whether candidate satisfies d used as a mask.
func (d TypeDescriptor) Matches(candidate TypeDescriptor) bool {
	return field(d.Domain, candidate.Domain) &&
		field(d.Category, candidate.Category) &&
		field(d.Subcategory, candidate.Subcategory) &&
		field(d.Resource, candidate.Resource) &&
		field(d.Version, candidate.Version)
}

// ParseDescriptor is the inverse of TypeDescriptor.String. The version suffix
// and trailing path segments are optional.
func ParseDescriptor(s string) (TypeDescriptor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TypeDescriptor{}, fmt.Errorf("%w: empty", ErrMalformedDescriptor)
	}

	var d TypeDescriptor
	path := s
	if i := strings.LastIndex(s, "@"); i >= 0 {
		path, d.Version = s[:i], unwild(s[i+1:])
	}

	segs := strings.Split(path, "/")
	if len(segs) > 4 {
		return TypeDescriptor{}, fmt.Errorf("%w: %q has %d segments", ErrMalformedDescriptor, s, len(segs))
	}
	for i, seg := range segs {
		if seg == "" && i < len(segs)-1 {
			return TypeDescriptor{}, fmt.Errorf("%w: %q has an empty segment", ErrMalformedDescriptor, s)
		}
		switch i {
		case 0:
			d.Domain = unwild(seg)
		case 1:
			d.Category = unwild(seg)
		case 2:
			d.Subcategory = unwild(seg)
		case 3:
			d.Resource = unwild(seg)
		}
	}
	return d, nil
}

func wild(v string) bool { return v == "" || v == Wildcard }

func field(mask, value string) bool { return wild(mask) || mask == value }

func or(v string) string {
	if v == "" {
		return Wildcard
	}
	return v
}

func unwild(v string) string {
	if v == Wildcard {
		return ""
	}
	return v
}
