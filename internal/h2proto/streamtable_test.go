package h2proto

import "testing"

func TestStreamTableDualLookup(t *testing.T) {
	st := NewStreamTable()
	st.Insert(&StreamEntry{ID: 1, Ref: "req-a", ReplyTo: "caller-a"})
	st.Insert(&StreamEntry{ID: 3, Ref: "req-b", ReplyTo: "caller-b"})

	if e, ok := st.ByID(1); !ok || e.Ref != "req-a" {
		t.Fatalf("ByID(1) = %+v, %v", e, ok)
	}
	if e, ok := st.ByRef("req-b"); !ok || e.ID != 3 {
		t.Fatalf("ByRef(req-b) = %+v, %v", e, ok)
	}
	if st.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", st.Count())
	}
}

func TestStreamTableDeleteRemovesBothIndices(t *testing.T) {
	st := NewStreamTable()
	st.Insert(&StreamEntry{ID: 1, Ref: "req-a"})
	st.Delete(1)

	if _, ok := st.ByID(1); ok {
		t.Error("ByID(1) still found after Delete")
	}
	if _, ok := st.ByRef("req-a"); ok {
		t.Error("ByRef(req-a) still found after Delete")
	}
	if st.Count() != 0 {
		t.Errorf("Count() = %d, want 0", st.Count())
	}
}

func TestStreamTableEachIsStableInsertionOrder(t *testing.T) {
	st := NewStreamTable()
	st.Insert(&StreamEntry{ID: 5, Ref: "a"})
	st.Insert(&StreamEntry{ID: 1, Ref: "b"})
	st.Insert(&StreamEntry{ID: 3, Ref: "c"})
	st.Delete(1)

	var seen []uint32
	st.Each(func(e *StreamEntry) { seen = append(seen, e.ID) })
	if len(seen) != 2 || seen[0] != 5 || seen[1] != 3 {
		t.Fatalf("Each() order = %v, want [5 3]", seen)
	}
}

func TestStreamTableInsertDuplicateIDPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Insert() with duplicate id did not panic")
		}
	}()
	st := NewStreamTable()
	st.Insert(&StreamEntry{ID: 1, Ref: "a"})
	st.Insert(&StreamEntry{ID: 1, Ref: "b"})
}
