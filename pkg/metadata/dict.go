// Package metadata holds a document's metadata dictionary and merges
// generated descriptions and accessibility assertions into it.
package metadata

import "github.com/xhad/pdfalt/internal/types"

// Dict is an ordered dictionary of metadata entries. Keys are unique and
// compared exactly; the zero value is an empty dictionary ready to use.
type Dict struct {
	keys   []string
	values map[string]types.MetadataEntry
}

// FromEntries builds a Dict from entries in order. A repeated key keeps
// its first position and its last value. Value kinds are kept.
func FromEntries(entries []types.MetadataEntry) Dict {
	var d Dict
	for _, e := range entries {
		d.put(e)
	}
	return d
}

func (d *Dict) Get(key string) (string, bool) {
	e, ok := d.values[key]
	return e.Value, ok
}

// Set inserts key at the end or replaces its value in place. The value is
// stored as a text string.
func (d *Dict) Set(key, value string) {
	d.put(types.MetadataEntry{Key: key, Value: value})
}

func (d *Dict) put(e types.MetadataEntry) {
	if d.values == nil {
		d.values = make(map[string]types.MetadataEntry)
	}
	if _, ok := d.values[e.Key]; !ok {
		d.keys = append(d.keys, e.Key)
	}
	d.values[e.Key] = e
}

// Append concatenates value onto the existing value of key, or sets it.
func (d *Dict) Append(key, value string) {
	existing, _ := d.Get(key)
	d.Set(key, existing+value)
}

func (d Dict) Len() int { return len(d.keys) }

// Keys returns the keys in insertion order.
func (d Dict) Keys() []string {
	return append([]string(nil), d.keys...)
}

// Entries returns the key/value pairs in insertion order.
func (d Dict) Entries() []types.MetadataEntry {
	entries := make([]types.MetadataEntry, 0, len(d.keys))
	for _, k := range d.keys {
		entries = append(entries, d.values[k])
	}
	return entries
}

// Clone returns an independent copy.
func (d Dict) Clone() Dict {
	c := Dict{
		keys:   append([]string(nil), d.keys...),
		values: make(map[string]types.MetadataEntry, len(d.values)),
	}
	for k, v := range d.values {
		c.values[k] = v
	}
	return c
}
