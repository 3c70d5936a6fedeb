// Package dom is an in-memory document holding script elements. It lets the
// script controller run outside a browser and counts every mutation.
package dom

import (
	"html"
	"sort"
	"strings"
	"sync"
)

// Document is the part of the DOM the script controller touches.
type Document interface {
	// ScriptByID returns the attached script element with id.
	ScriptByID(id string) (Element, bool)
	// NewScript creates a detached script element.
	NewScript(id, src string, async bool) Element
	// Append attaches el to the document body.
	Append(el Element)
	// Remove detaches the element with id and reports whether one existed.
	Remove(id string) bool
}

// Element is a script element.
type Element interface {
	Attributes() map[string]string
	SetAttribute(name, value string)
	RemoveAttribute(name string)
}

var _ Document = (*MemoryDocument)(nil)

// MemoryDocument is a concurrency-safe document body containing script elements.
type MemoryDocument struct {
	mu        sync.Mutex
	scripts   []*Script
	mutations int
}

// NewMemoryDocument creates an empty document.
func NewMemoryDocument() *MemoryDocument {
	return &MemoryDocument{}
}

// Script is a script element. Attribute order is insertion order.
type Script struct {
	doc   *MemoryDocument
	id    string
	src   string
	async bool

	names  []string
	values map[string]string
}

// ScriptByID returns the attached script with id.
func (d *MemoryDocument) ScriptByID(id string) (Element, bool) {
	s, ok := d.Lookup(id)
	if !ok {
		return nil, false
	}
	return s, true
}

// Lookup returns the attached script with id as its concrete type.
func (d *MemoryDocument) Lookup(id string) (*Script, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.scripts {
		if s.id == id {
			return s, true
		}
	}
	return nil, false
}

// NewScript creates a detached script element.
func (d *MemoryDocument) NewScript(id, src string, async bool) Element {
	return &Script{doc: d, id: id, src: src, async: async, values: make(map[string]string)}
}

// Append attaches el, replacing any attached script with the same id.
// Elements created by another document are ignored.
func (d *MemoryDocument) Append(el Element) {
	s, ok := el.(*Script)
	if !ok || s.doc != d {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(s.id)
	d.scripts = append(d.scripts, s)
	d.mutations++
}

// Remove detaches the script with id.
func (d *MemoryDocument) Remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removeLocked(id)
}

func (d *MemoryDocument) removeLocked(id string) bool {
	for i, s := range d.scripts {
		if s.id == id {
			d.scripts = append(d.scripts[:i], d.scripts[i+1:]...)
			d.mutations++
			return true
		}
	}
	return false
}

// Mutations returns the number of node and attribute mutations so far.
func (d *MemoryDocument) Mutations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mutations
}

// Count returns the number of attached scripts with id.
func (d *MemoryDocument) Count(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.scripts {
		if s.id == id {
			n++
		}
	}
	return n
}

// RenderScript returns the HTML of the attached script with id, or "".
func (d *MemoryDocument) RenderScript(id string) string {
	s, ok := d.Lookup(id)
	if !ok {
		return ""
	}
	return s.HTML()
}

// ID returns the element id.
func (s *Script) ID() string { return s.id }

// Src returns the script URL.
func (s *Script) Src() string { return s.src }

// Attributes returns a copy of the element's attributes.
func (s *Script) Attributes() map[string]string {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Attribute returns one attribute value.
func (s *Script) Attribute(name string) (string, bool) {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()
	v, ok := s.values[name]
	return v, ok
}

// SetAttribute sets name to value.
func (s *Script) SetAttribute(name, value string) {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()
	if _, ok := s.values[name]; !ok {
		s.names = append(s.names, name)
	}
	s.values[name] = value
	s.doc.mutations++
}

// RemoveAttribute deletes name. Removing a missing attribute is not a mutation.
func (s *Script) RemoveAttribute(name string) {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()
	if _, ok := s.values[name]; !ok {
		return
	}
	delete(s.values, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			break
		}
	}
	s.doc.mutations++
}

// HTML renders the element as a script tag.
func (s *Script) HTML() string {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()

	var b strings.Builder
	b.WriteString(`<script id="`)
	b.WriteString(html.EscapeString(s.id))
	b.WriteString(`" type="text/javascript" src="`)
	b.WriteString(html.EscapeString(s.src))
	b.WriteByte('"')
	if s.async {
		b.WriteString(" async")
	}
	for _, name := range s.names {
		b.WriteByte(' ')
		b.WriteString(name)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(s.values[name]))
		b.WriteByte('"')
	}
	b.WriteString("></script>")
	return b.String()
}

// SortedAttributeNames returns the attribute names in lexical order.
func (s *Script) SortedAttributeNames() []string {
	s.doc.mu.Lock()
	defer s.doc.mu.Unlock()
	names := append([]string(nil), s.names...)
	sort.Strings(names)
	return names
}
