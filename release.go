package dieselrt

// releaser collects cleanup functions as objects are created and runs them
// in reverse order, so teardown mirrors construction.
type releaser []func()

func (r *releaser) push(fn func()) {
	*r = append(*r, fn)
}

func (r *releaser) release() {
	for i := len(*r) - 1; i >= 0; i-- {
		(*r)[i]()
	}
	*r = nil
}
