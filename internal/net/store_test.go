package net

import (
	"sync"
	"testing"
)

func TestSessionStore(t *testing.T) {
	st := NewSessionStore()
	if st.Len() != 0 {
		t.Fatalf("fresh store has %d sessions", st.Len())
	}

	a := &Session{ID: 1}
	b := &Session{ID: 2}
	st.Add(a)
	st.Add(b)

	if st.Len() != 2 {
		t.Fatalf("Len() = %d", st.Len())
	}
	if got, ok := st.Get(1); !ok || got != a {
		t.Fatal("Get(1) miss")
	}
	if len(st.All()) != 2 {
		t.Fatal("All() incomplete")
	}

	st.Remove(1)
	if _, ok := st.Get(1); ok {
		t.Fatal("removed session still resolvable")
	}
	if st.Len() != 1 {
		t.Fatalf("Len() = %d after remove", st.Len())
	}

	// Removing an id that is not present must be a no-op.
	st.Remove(99)
	if st.Len() != 1 {
		t.Fatal("Remove of absent id changed the table")
	}
}

func TestSessionStoreConcurrent(t *testing.T) {
	st := NewSessionStore()
	var wg sync.WaitGroup
	for i := uint64(0); i < 32; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			st.Add(&Session{ID: id})
			st.Get(id)
			st.Len()
			st.Remove(id)
		}(i)
	}
	wg.Wait()
	if st.Len() != 0 {
		t.Fatalf("Len() = %d after all removals", st.Len())
	}
}
