package cell

import "sync"

// observable is the untyped subscription surface Cell and Computed both
// implement so dependency tracking can subscribe to either without knowing
// the value type.
type observable interface {
	subscribeUntyped(fn func()) func()
}

// trackStack is a single process-wide stack, not one per goroutine: pushing
// and popping brackets one Effect/Computed recomputation at a time, and
// recordRead always attributes a Get to whichever tracker is innermost at
// that instant. That is correct only as long as recomputations don't
// actually run concurrently with each other or with untracked reads of the
// cells they depend on — the module's single cooperative task queue (the
// same assumption Effect's run/unsubscribe bookkeeping below relies on)
// guarantees the former. The latter is why any reader that must run off that
// queue, such as a background save encoding a cell's value, uses Cell.Peek
// instead of Cell.Get: a Get from an unrelated goroutine while some Effect
// is mid-recomputation would get recorded as that Effect's dependency, or
// miss being recorded as anyone's, depending on timing.
var (
	trackMu    sync.Mutex
	trackStack []*trackSet
)

type trackSet struct {
	seen  map[observable]bool
	order []observable
}

func pushTracker() *trackSet {
	ts := &trackSet{seen: make(map[observable]bool)}
	trackMu.Lock()
	trackStack = append(trackStack, ts)
	trackMu.Unlock()
	return ts
}

func popTracker() []observable {
	trackMu.Lock()
	ts := trackStack[len(trackStack)-1]
	trackStack = trackStack[:len(trackStack)-1]
	trackMu.Unlock()
	return ts.order
}

// recordRead registers o as a dependency of the innermost active tracker, if
// any. Called from Cell.Get and Computed.Get.
func recordRead(o observable) {
	trackMu.Lock()
	defer trackMu.Unlock()
	if len(trackStack) == 0 {
		return
	}
	ts := trackStack[len(trackStack)-1]
	if !ts.seen[o] {
		ts.seen[o] = true
		ts.order = append(ts.order, o)
	}
}

// Effect runs fn immediately, then re-runs it whenever any cell or computed
// it read (directly, via Get) last time changes. It returns a dispose
// function that stops further re-runs.
func Effect(fn func()) func() {
	var mu sync.Mutex
	var unsubs []func()
	var disposed bool
	var run func()

	run = func() {
		mu.Lock()
		if disposed {
			mu.Unlock()
			return
		}
		prev := unsubs
		unsubs = nil
		mu.Unlock()
		for _, u := range prev {
			u()
		}

		pushTracker()
		fn()
		deps := popTracker()

		mu.Lock()
		defer mu.Unlock()
		if disposed {
			return
		}
		for _, dep := range deps {
			unsubs = append(unsubs, dep.subscribeUntyped(run))
		}
	}

	run()

	return func() {
		mu.Lock()
		disposed = true
		subs := unsubs
		unsubs = nil
		mu.Unlock()
		for _, u := range subs {
			u()
		}
	}
}
