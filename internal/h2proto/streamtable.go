package h2proto

// StreamTable is the engine's application-facing view of active
// streams: each entry is keyed by both the wire stream id the Machine
// assigned and an opaque ref the caller chose when it issued the
// request, so lookups work from either the transport side (a frame
// arrived for stream 7) or the application side (cancel the stream I
// called request() for).
type StreamTable struct {
	byID  map[uint32]*StreamEntry
	byRef map[any]*StreamEntry
	order []uint32 // insertion order, for stable iteration
}

// StreamEntry is one row of the Stream Table. ReplyTo is stored as any
// rather than a named interface type so this package carries no
// dependency on the engine layer that defines what a reply target is;
// callers assert back to their own concrete interface.
type StreamEntry struct {
	ID      uint32
	Ref     any
	ReplyTo any
}

// NewStreamTable builds an empty table.
func NewStreamTable() *StreamTable {
	return &StreamTable{
		byID:  map[uint32]*StreamEntry{},
		byRef: map[any]*StreamEntry{},
	}
}

// Insert adds a new entry. It panics if id or ref is already present,
// since both are assigned by the caller and are expected to be unique.
func (t *StreamTable) Insert(e *StreamEntry) {
	if _, exists := t.byID[e.ID]; exists {
		panic("h2proto: duplicate stream id inserted into StreamTable")
	}
	if _, exists := t.byRef[e.Ref]; exists {
		panic("h2proto: duplicate stream ref inserted into StreamTable")
	}
	t.byID[e.ID] = e
	t.byRef[e.Ref] = e
	t.order = append(t.order, e.ID)
}

// ByID looks a stream up by its wire id.
func (t *StreamTable) ByID(id uint32) (*StreamEntry, bool) {
	e, ok := t.byID[id]
	return e, ok
}

// ByRef looks a stream up by its application-chosen ref.
func (t *StreamTable) ByRef(ref any) (*StreamEntry, bool) {
	e, ok := t.byRef[ref]
	return e, ok
}

// Delete removes id, if present, from both indices.
func (t *StreamTable) Delete(id uint32) {
	e, ok := t.byID[id]
	if !ok {
		return
	}
	delete(t.byID, id)
	delete(t.byRef, e.Ref)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Count returns the number of active streams.
func (t *StreamTable) Count() int { return len(t.byID) }

// Each calls fn for every active entry in stable insertion order.
func (t *StreamTable) Each(fn func(*StreamEntry)) {
	for _, id := range t.order {
		if e, ok := t.byID[id]; ok {
			fn(e)
		}
	}
}
