package engine

import "fmt"

// Select implements the "race" requirement spec.md §4.5.3 step 7 needs
// (timer vs InstanceDeleted event): it returns the index of the first
// already-resolved future in the order given. If none has resolved yet,
// it suspends the decision round — the next round re-evaluates the same
// set once more history has landed.
func Select(futures ...Awaitable) (int, error) {
	if len(futures) == 0 {
		return -1, fmt.Errorf("fatal: Select called with no futures")
	}
	for i, f := range futures {
		if f.Resolved() {
			return i, nil
		}
	}
	// None resolved: any one of them carries an OrchestrationContext
	// reference implicitly through its own suspend path, but Select itself
	// has no context handle — the caller is expected to have already
	// called the scheduling primitives that produced these futures, so
	// simply panicking with the shared suspend signal is correct: the
	// next round replays from scratch and re-derives which one resolves.
	panic(suspendSignal{})
}
