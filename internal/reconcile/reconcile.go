// Package reconcile computes the delta between the attributes currently on
// the tracker script element and the attributes a fresh snapshot wants there.
// The controller applies only that delta instead of recreating the element,
// so the third-party script is never reloaded for a data change.
package reconcile

import (
	"sort"
	"strings"
)

// AttributeDiff describes the mutations needed to reconcile attributes.
// Operations must be applied in order: Remove → Set, so a key present in
// both states is never momentarily absent.
type AttributeDiff struct {
	ToRemove []string       // Keys on the element that the snapshot no longer carries, sorted
	ToSet    []AttributeSet // Keys whose value is new or changed, in snapshot order
}

// AttributeSet specifies a value to write.
type AttributeSet struct {
	Key      string
	OldValue string // Current value (informational), empty when absent
	Value    string
	Existed  bool
}

// Desired is one entry of the target attribute state, in snapshot order.
type Desired struct {
	Key   string
	Value string
}

// IsEmpty returns true if no attribute changes are needed.
func (d *AttributeDiff) IsEmpty() bool {
	return d == nil || (len(d.ToRemove) == 0 && len(d.ToSet) == 0)
}

// Len returns the number of mutations the diff will cause.
func (d *AttributeDiff) Len() int {
	if d == nil {
		return 0
	}
	return len(d.ToRemove) + len(d.ToSet)
}

// DiffAttributes computes the delta between current and desired.
//
// keep marks always-present keys. Rules:
//  1. A desired key with a value is set when absent or different.
//  2. A desired key with an empty value is written as "" when kept, removed otherwise.
//  3. A current key missing from desired is removed unless kept.
func DiffAttributes(current map[string]string, desired []Desired, keep func(key string) bool) *AttributeDiff {
	if keep == nil {
		keep = func(string) bool { return false }
	}

	diff := &AttributeDiff{}
	wanted := make(map[string]bool, len(desired))
	removed := make(map[string]bool)

	for _, d := range desired {
		wanted[d.Key] = true
		old, exists := current[d.Key]

		if d.Value == "" && !keep(d.Key) {
			// Empty optional fields are omitted rather than written blank
			if exists && !removed[d.Key] {
				removed[d.Key] = true
				diff.ToRemove = append(diff.ToRemove, d.Key)
			}
			continue
		}

		if exists && old == d.Value {
			continue
		}
		diff.ToSet = append(diff.ToSet, AttributeSet{
			Key:      d.Key,
			OldValue: old,
			Value:    d.Value,
			Existed:  exists,
		})
	}

	for key := range current {
		if !wanted[key] && !keep(key) && !removed[key] {
			removed[key] = true
			diff.ToRemove = append(diff.ToRemove, key)
		}
	}

	sort.Strings(diff.ToRemove)
	diff.ToSet = dedupeSets(diff.ToSet)
	return diff
}

// dedupeSets keeps the last write per key, at the position of its first
// occurrence. Snapshots never repeat keys, but callers may hand in raw lists.
func dedupeSets(sets []AttributeSet) []AttributeSet {
	if len(sets) < 2 {
		return sets
	}
	index := make(map[string]int, len(sets))
	out := sets[:0]
	for _, s := range sets {
		if i, ok := index[s.Key]; ok {
			out[i].Value = s.Value
			continue
		}
		index[s.Key] = len(out)
		out = append(out, s)
	}
	return out
}

// FilterPrefix returns the part of d touching keys that start with prefix.
// Used to patch product attributes without disturbing the rest of the element.
func (d *AttributeDiff) FilterPrefix(prefix string) *AttributeDiff {
	out := &AttributeDiff{}
	if d == nil {
		return out
	}
	for _, key := range d.ToRemove {
		if strings.HasPrefix(key, prefix) {
			out.ToRemove = append(out.ToRemove, key)
		}
	}
	for _, s := range d.ToSet {
		if strings.HasPrefix(s.Key, prefix) {
			out.ToSet = append(out.ToSet, s)
		}
	}
	return out
}

// Keys returns every key the diff touches, removals first.
func (d *AttributeDiff) Keys() []string {
	if d == nil {
		return nil
	}
	keys := make([]string, 0, d.Len())
	keys = append(keys, d.ToRemove...)
	for _, s := range d.ToSet {
		keys = append(keys, s.Key)
	}
	return keys
}
