package parcel

import (
	"slices"
	"time"
)

// Manifest describes one data parcel: its type, who published it and,
// optionally, who it is meant for.
type Manifest struct {
	ID              string         `json:"id,omitempty"`
	Descriptor      TypeDescriptor `json:"descriptor"`
	Source          string         `json:"source,omitempty"`
	Target          string         `json:"target,omitempty"`
	Payload         []byte         `json:"payload,omitempty"`
	CreationInstant time.Time      `json:"creationInstant"`
}

// Key is the identity used for set semantics over manifests.
func (m Manifest) Key() string {
	return m.Descriptor.String()
}

// Clone returns a deep copy.
func (m Manifest) Clone() Manifest {
	m.Payload = slices.Clone(m.Payload)
	return m
}

// CloneAll deep-copies a manifest slice, preserving nil.
func CloneAll(ms []Manifest) []Manifest {
	if ms == nil {
		return nil
	}
	out := make([]Manifest, len(ms))
	for i, m := range ms {
		out[i] = m.Clone()
	}
	return out
}

// Union appends the manifests from added whose Key is not already present in
// existing. It reports whether anything was appended.
func Union(existing, added []Manifest) ([]Manifest, bool) {
	seen := make(map[string]struct{}, len(existing)+len(added))
	out := CloneAll(existing)
	for _, m := range existing {
		seen[m.Key()] = struct{}{}
	}

	changed := false
	for _, m := range added {
		k := m.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, m.Clone())
		changed = true
	}
	return out, changed
}
