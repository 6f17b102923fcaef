package session

import "testing"

func TestPool_AppendGetRelease(t *testing.T) {
	pool := NewPool(4)

	a := NewSession(1, &fakeTransport{})
	b := NewSession(2, &fakeTransport{})
	slotA := pool.Append(a)
	slotB := pool.Append(b)

	if pool.Get(slotA) != a || pool.Get(slotB) != b {
		t.Fatal("Get must return the appended sessions")
	}
	if pool.Get(-1) != nil || pool.Get(99) != nil {
		t.Fatal("out-of-range slots must read as nil")
	}

	pool.Release(slotA)
	if pool.Get(slotA) != nil {
		t.Fatal("released slot must read as nil")
	}
	if pool.Size() != 2 || pool.Live() != 1 {
		t.Fatalf("expected size 2 live 1, got size %d live %d", pool.Size(), pool.Live())
	}
}

func TestPool_ForEachSkipsEmptySlots(t *testing.T) {
	pool := NewPool(4)
	pool.Append(NewSession(1, &fakeTransport{}))
	released := pool.Append(NewSession(2, &fakeTransport{}))
	pool.Append(NewSession(3, &fakeTransport{}))
	pool.Release(released)

	var visited []int
	pool.ForEach(func(_ int, s *Session) {
		visited = append(visited, s.Index())
	})
	if len(visited) != 2 || visited[0] != 1 || visited[1] != 3 {
		t.Fatalf("expected sessions 1 and 3, got %v", visited)
	}
}

func TestPool_Rebuild(t *testing.T) {
	pool := NewPool(2)
	keep := NewSession(1, &fakeTransport{})
	pool.Append(keep)
	for i := 2; i <= 5; i++ {
		slot := pool.Append(NewSession(i, &fakeTransport{}))
		pool.Release(slot)
	}

	if pool.Size() != 5 || pool.Live() != 1 {
		t.Fatalf("precondition failed: size %d live %d", pool.Size(), pool.Live())
	}

	pool.Rebuild(2)

	if pool.Size() != 1 || pool.Live() != 1 {
		t.Fatalf("expected compacted pool of 1, got size %d live %d", pool.Size(), pool.Live())
	}
	if pool.Get(0) != keep {
		t.Fatal("rebuild must keep live sessions")
	}
}
