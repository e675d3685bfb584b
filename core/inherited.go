package core

// Inherited is a tri-state attribute: a child either follows the value
// pushed down by its parent or carries an explicit override. A parent-side
// mutation pushes the new value down and clears the override, the "reset to
// inherit" signal.
type Inherited[T any] struct {
	value      T
	overridden bool
}

// Value returns the effective value.
func (i *Inherited[T]) Value() T {
	return i.value
}

func (i *Inherited[T]) IsOverridden() bool {
	return i.overridden
}

// Override pins a child-local value until the next parent push.
func (i *Inherited[T]) Override(value T) {
	i.value = value
	i.overridden = true
}

// ResetToInherited installs the parent value and drops any override.
func (i *Inherited[T]) ResetToInherited(value T) {
	i.value = value
	i.overridden = false
}
