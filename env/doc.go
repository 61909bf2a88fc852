// Package env holds the host-side state shared by every import of one guest
// instance.
//
// An Env carries three things:
//
//	captured error   first error raised by any import; later ones are dropped
//	memory           the instance's linear memory, bound once after instantiation
//	allocation       optional guest alloc/dealloc exports
//
// Import bodies never return errors to the guest. They route failures through
// HandleError (or Record), which stores the first one and discards the rest:
//
//	s, err := view.ReadString(ptr, length)
//	s, ok := env.HandleError(e, s, err)
//	if !ok {
//	    return // error captured, guest continues
//	}
//
// The driver inspects Err after the guest call returns.
//
// Memory and allocation handles sit behind one lock. WithMemory runs a
// callback while holding it; if the callback panics the lock is marked
// abandoned and every later access fails with a lock_abandoned error.
package env
