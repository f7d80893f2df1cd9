package xan

import "strings"

// tableEntry is one slot of the open-addressing table. A nil Key with
// Value.Bool true marks a tombstone (a deleted entry kept so probe
// chains past it stay intact), grounded in original_source's
// table.c, which reuses a NIL-keyed Value(true) for the same purpose.
type tableEntry struct {
	Key   *ObjString
	Value Value
}

const tableMaxLoad = 0.75
const tableFloorCapacity = 8

// ObjTable is an open-addressing hash map keyed by interned strings,
// with tombstones reclaimed on resize and capacity always a power of
// two.
type ObjTable struct {
	Obj
	entries []tableEntry
	count   int // live entries + tombstones
	live    int // live entries only
}

func newTable() *ObjTable {
	return &ObjTable{}
}

// Count returns the number of live (non-tombstone) entries.
func (t *ObjTable) Count() int { return t.live }

func (t *ObjTable) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	for _, e := range t.entries {
		if e.Key == nil {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(e.Key.String())
		sb.WriteString(": ")
		if e.Value.IsObjKind(ObjKindString) {
			sb.WriteByte('"')
			sb.WriteString(e.Value.String())
			sb.WriteByte('"')
		} else {
			sb.WriteString(e.Value.String())
		}
	}
	sb.WriteByte('}')
	return sb.String()
}

func tableGrowCapacity(c int) int {
	if c < tableFloorCapacity {
		return tableFloorCapacity
	}
	return c * 2
}

// findEntry locates the slot key should occupy: an empty slot, the
// slot already holding key, or (if every live slot is full) the first
// tombstone seen along the probe chain.
func findEntry(entries []tableEntry, key *ObjString) *tableEntry {
	capacity := len(entries)
	index := int(key.Hash) % capacity
	var tombstone *tableEntry

	for {
		e := &entries[index]
		switch {
		case e.Key == nil:
			if e.Value.IsNil() {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			// tombstone
			if tombstone == nil {
				tombstone = e
			}
		case e.Key == key:
			return e
		}
		index = (index + 1) % capacity
	}
}

func (t *ObjTable) adjustCapacity(capacity int) {
	newEntries := make([]tableEntry, capacity)
	t.live = 0
	for _, e := range t.entries {
		if e.Key == nil {
			continue
		}
		dest := findEntry(newEntries, e.Key)
		dest.Key = e.Key
		dest.Value = e.Value
		t.live++
	}
	t.entries = newEntries
	t.count = t.live
}

// Get returns the value stored for key, if present.
func (t *ObjTable) Get(key *ObjString) (Value, bool) {
	if len(t.entries) == 0 {
		return NilValue(), false
	}
	e := findEntry(t.entries, key)
	if e.Key == nil {
		return NilValue(), false
	}
	return e.Value, true
}

// Set stores value under key, growing the table first if the load
// factor would exceed tableMaxLoad. Returns true if this created a new
// key.
func (t *ObjTable) Set(key *ObjString, value Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*tableMaxLoad {
		t.adjustCapacity(tableGrowCapacity(len(t.entries)))
	}
	e := findEntry(t.entries, key)
	isNew := e.Key == nil
	if isNew && e.Value.IsNil() {
		t.count++
	}
	if isNew {
		t.live++
	}
	e.Key = key
	e.Value = value
	return isNew
}

// Delete removes key, leaving a tombstone behind so later probes still
// reach entries that hashed past it.
func (t *ObjTable) Delete(key *ObjString) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := findEntry(t.entries, key)
	if e.Key == nil {
		return false
	}
	e.Key = nil
	e.Value = BoolValue(true) // tombstone marker
	t.live--
	return true
}

// AddAll copies every entry of src into t, used by OP_INHERIT to copy
// a superclass's methods into a subclass.
func (t *ObjTable) AddAll(src *ObjTable) {
	for _, e := range src.entries {
		if e.Key == nil {
			continue
		}
		t.Set(e.Key, e.Value)
	}
}

// FindInterned looks a byte-identical string up in the intern table
// without allocating an ObjString, used by the allocator before
// creating a new one.
func (t *ObjTable) FindInterned(chars []byte, hash uint32) *ObjString {
	if len(t.entries) == 0 {
		return nil
	}
	capacity := len(t.entries)
	index := int(hash) % capacity
	for {
		e := &t.entries[index]
		switch {
		case e.Key == nil && e.Value.IsNil():
			return nil
		case e.Key != nil && e.Key.Hash == hash && string(e.Key.Chars) == string(chars):
			return e.Key
		}
		index = (index + 1) % capacity
	}
}

// removeWhite deletes every entry whose key is unmarked. The intern
// table is a weak root: it is traced for structure (see gc.go) but
// entries an otherwise-unreachable key would keep alive are dropped
// here, before sweep.
func (t *ObjTable) removeWhite() {
	for _, e := range t.entries {
		if e.Key != nil && !e.Key.Marked {
			t.Delete(e.Key)
		}
	}
}
