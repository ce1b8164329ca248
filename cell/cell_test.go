package cell

import (
	"errors"
	"testing"
)

func TestCellSetSuppressesDuplicateNotify(t *testing.T) {
	c := New(1)
	var notifications int
	c.Subscribe(func(int) { notifications++ })

	c.Set(1)
	if notifications != 0 {
		t.Fatalf("expected no notification for same value, got %d", notifications)
	}

	c.Set(2)
	if notifications != 1 {
		t.Fatalf("expected one notification, got %d", notifications)
	}
	if got := c.Get(); got != 2 {
		t.Fatalf("Get() = %d, want 2", got)
	}
}

func TestCellMutateAlwaysNotifies(t *testing.T) {
	c := New([]int{1, 2})
	var calls int
	c.Subscribe(func([]int) { calls++ })

	c.Mutate(func(v *[]int) { *v = append(*v, 3) })
	c.Mutate(func(v *[]int) { *v = append(*v, 3) })

	if calls != 2 {
		t.Fatalf("expected 2 notifications from Mutate, got %d", calls)
	}
	if got := c.Get(); len(got) != 4 {
		t.Fatalf("Get() = %v, want len 4", got)
	}
}

func TestCellSubscribeOrderAndUnsubscribe(t *testing.T) {
	c := New(0)
	var order []int
	unsubA := c.Subscribe(func(int) { order = append(order, 1) })
	c.Subscribe(func(int) { order = append(order, 2) })

	c.Set(5)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected subscription-ordered notify [1 2], got %v", order)
	}

	unsubA()
	order = nil
	c.Set(6)
	if len(order) != 1 || order[0] != 2 {
		t.Fatalf("expected only second subscriber after unsubscribe, got %v", order)
	}
}

func TestBatchCollapsesToOneNotificationPerCell(t *testing.T) {
	a := New(0)
	b := New(0)
	var aCalls, bCalls int
	var lastA, lastB int
	a.Subscribe(func(v int) { aCalls++; lastA = v })
	b.Subscribe(func(v int) { bCalls++; lastB = v })

	Batch(func() {
		a.Set(1)
		a.Set(2)
		a.Set(3)
		b.Set(10)
	})

	if aCalls != 1 {
		t.Fatalf("expected 1 notification for a, got %d", aCalls)
	}
	if lastA != 3 {
		t.Fatalf("expected final value 3 for a, got %d", lastA)
	}
	if bCalls != 1 {
		t.Fatalf("expected 1 notification for b, got %d", bCalls)
	}
	if lastB != 10 {
		t.Fatalf("expected final value 10 for b, got %d", lastB)
	}
}

func TestEffectReRunsOnDependencyChange(t *testing.T) {
	a := New(1)
	b := New(2)
	var sum int
	var runs int

	dispose := Effect(func() {
		runs++
		sum = a.Get() + b.Get()
	})
	defer dispose()

	if runs != 1 || sum != 3 {
		t.Fatalf("expected one initial run with sum 3, got runs=%d sum=%d", runs, sum)
	}

	a.Set(10)
	if runs != 2 || sum != 12 {
		t.Fatalf("expected re-run on dependency change, got runs=%d sum=%d", runs, sum)
	}

	b.Set(100)
	if runs != 3 || sum != 110 {
		t.Fatalf("expected re-run on second dependency change, got runs=%d sum=%d", runs, sum)
	}
}

func TestEffectDisposeStopsReRuns(t *testing.T) {
	a := New(1)
	var runs int
	dispose := Effect(func() {
		runs++
		a.Get()
	})
	dispose()

	a.Set(2)
	if runs != 1 {
		t.Fatalf("expected no re-run after dispose, got runs=%d", runs)
	}
}

func TestComputedRecomputesFromDependencies(t *testing.T) {
	price := New(10.0)
	qty := New(2)

	total := NewComputed(func() (float64, error) {
		return price.Get() * float64(qty.Get()), nil
	})

	if v, err := total.Get(); err != nil || v != 20 {
		t.Fatalf("Get() = %v, %v; want 20, nil", v, err)
	}

	qty.Set(5)
	if v, err := total.Get(); err != nil || v != 50 {
		t.Fatalf("Get() after dep change = %v, %v; want 50, nil", v, err)
	}
}

func TestComputedStickyErrorUntilNextChange(t *testing.T) {
	shouldFail := New(true)
	n := New(4)
	wantErr := errors.New("boom")

	c := NewComputed(func() (int, error) {
		if shouldFail.Get() {
			return 0, wantErr
		}
		return n.Get(), nil
	})

	if _, err := c.Get(); !errors.Is(err, wantErr) {
		t.Fatalf("expected sticky error, got %v", err)
	}

	shouldFail.Set(false)
	v, err := c.Get()
	if err != nil {
		t.Fatalf("expected recovery after dependency change, got err=%v", err)
	}
	if v != 4 {
		t.Fatalf("Get() = %d, want 4", v)
	}
}
