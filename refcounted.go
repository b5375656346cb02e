package nxt

// RefCounted is embedded by objects that are shared between the device's
// internal graph and external owners. Objects start with one reference held
// by their creator. Counts are plain integers: a device and everything it
// owns are confined to one goroutine by contract.
type RefCounted struct {
	refs    uint64
	destroy func()
}

// Reference adds an owner.
func (r *RefCounted) Reference() {
	if r.refs == 0 {
		panic("nxt: Reference on a destroyed object")
	}
	r.refs++
}

// Release drops an owner. Dropping the last owner destroys the object;
// GPU-visible resources route their destruction through the fenced deleter
// so nothing is torn down while in-flight work may still use it.
func (r *RefCounted) Release() {
	if r.refs == 0 {
		panic("nxt: Release on a destroyed object")
	}
	r.refs--
	if r.refs == 0 && r.destroy != nil {
		r.destroy()
	}
}

// RefCount returns the current number of owners.
func (r *RefCounted) RefCount() uint64 {
	return r.refs
}

// Counted is the contract a handle must satisfy to be held by an Object
// wrapper: it carries its own reference count.
type Counted interface {
	Reference()
	Release()
}

// Object is the cross-boundary ownership wrapper: a handle plus the single
// owning reference the wrapper is responsible for balancing. The zero value
// is an empty wrapper.
type Object[T Counted] struct {
	handle T
	valid  bool
}

// AdoptObject wraps handle and takes a new owning reference to it.
func AdoptObject[T Counted](handle T) Object[T] {
	handle.Reference()
	return Object[T]{handle: handle, valid: true}
}

// AcquireObject wraps a handle whose owning reference already exists; the
// caller's reference is transferred into the wrapper without incrementing.
func AcquireObject[T Counted](handle T) Object[T] {
	return Object[T]{handle: handle, valid: true}
}

// Clone returns a new wrapper sharing the handle, taking its own reference.
// The original wrapper is unaffected. Cloning an empty wrapper yields an
// empty wrapper.
func (o *Object[T]) Clone() Object[T] {
	if !o.valid {
		return Object[T]{}
	}
	o.handle.Reference()
	return Object[T]{handle: o.handle, valid: true}
}

// Detach empties the wrapper and returns the raw handle without releasing
// it: ownership of the wrapper's reference transfers to the caller, who must
// eventually balance it.
func (o *Object[T]) Detach() T {
	handle := o.handle
	var zero T
	o.handle = zero
	o.valid = false
	return handle
}

// Move transfers ownership into the returned wrapper and empties o. The
// reference count does not change.
func (o *Object[T]) Move() Object[T] {
	moved := Object[T]{handle: o.handle, valid: o.valid}
	var zero T
	o.handle = zero
	o.valid = false
	return moved
}

// Drop releases the wrapper's reference, if it holds one, and empties the
// wrapper. Assigning a new value over a live wrapper must Drop it first.
func (o *Object[T]) Drop() {
	if !o.valid {
		return
	}
	handle := o.handle
	var zero T
	o.handle = zero
	o.valid = false
	handle.Release()
}

// Get returns the wrapped handle, or the zero handle when empty.
func (o *Object[T]) Get() T {
	return o.handle
}

// Valid reports whether the wrapper currently holds a handle.
func (o *Object[T]) Valid() bool {
	return o.valid
}
