package parcel

import "strings"

// Mask filters inbound parcels by type and, optionally, by publishing
// participant. An empty or "*" Source accepts any publisher; a bare service
// name accepts every participant of that service.
type Mask struct {
	Descriptor TypeDescriptor `json:"descriptor"`
	Source     string         `json:"source,omitempty"`
}

// Key identifies a mask for set semantics.
func (k Mask) Key() string {
	return k.Descriptor.String() + "|" + or(k.Source)
}

// AnySource reports whether the mask accepts every publisher.
func (k Mask) AnySource() bool {
	return wild(k.Source)
}

// Matches reports whether m passes the mask.
func (k Mask) Matches(m Manifest) bool {
	if !k.Descriptor.Matches(m.Descriptor) {
		return false
	}
	if k.AnySource() || k.Source == m.Source {
		return true
	}
	return strings.HasPrefix(m.Source, k.Source+".")
}

// SourceService is the service part of Source, or "" for a wildcard.
func (k Mask) SourceService() string {
	if k.AnySource() {
		return ""
	}
	return ServiceOf(k.Source)
}

// ServiceOf returns the service part of a participant name of the form
// service.component. A name without a dot is its own service.
func ServiceOf(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

// UnionMasks appends the masks from added whose Key is not already present.
func UnionMasks(existing, added []Mask) ([]Mask, bool) {
	seen := make(map[string]struct{}, len(existing)+len(added))
	out := append([]Mask(nil), existing...)
	for _, k := range existing {
		seen[k.Key()] = struct{}{}
	}

	changed := false
	for _, k := range added {
		key := k.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, k)
		changed = true
	}
	return out, changed
}
