package tbf

import (
	"slices"

	"github.com/samcharles93/tbf/pkg/tensor"
)

// Field is one named tensor inside a record.
type Field struct {
	Key    string
	Tensor *tensor.Tensor
}

// Record is an insertion-ordered mapping from key to tensor.
type Record []Field

// Get returns the tensor stored under key.
func (r Record) Get(key string) (*tensor.Tensor, bool) {
	for i := range r {
		if r[i].Key == key {
			return r[i].Tensor, true
		}
	}
	return nil, false
}

// Keys returns the keys in insertion order.
func (r Record) Keys() []string {
	keys := make([]string, len(r))
	for i := range r {
		keys[i] = r[i].Key
	}
	return keys
}

func (r Record) Len() int { return len(r) }

// set replaces the tensor under key in place, or appends a new field.
func (r Record) set(key string, t *tensor.Tensor) Record {
	for i := range r {
		if r[i].Key == key {
			r[i].Tensor = t
			return r
		}
	}
	return append(r, Field{Key: key, Tensor: t})
}

// IndexEntry is the parsed metadata of one stored tensor.
type IndexEntry struct {
	RecordID   uint64
	Key        string
	DTypeCode  DTypeCode
	Shape      []int64
	DataOffset uint64
	NBytes     uint64
}

// End returns the absolute offset one past the payload.
func (e *IndexEntry) End() uint64 {
	return e.DataOffset + e.NBytes
}

// encodedSize is the number of index bytes e occupies on disk.
func (e *IndexEntry) encodedSize() int {
	return EntryPrefixSize + len(e.Shape)*dimSize + len(e.Key)
}

func (e *IndexEntry) clone() IndexEntry {
	c := *e
	c.Shape = slices.Clone(e.Shape)
	return c
}
