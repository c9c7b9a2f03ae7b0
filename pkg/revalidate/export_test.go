package revalidate

// LastFailure waits for any refresh in flight and returns the remembered failure.
func (c *Coordinator[T]) LastFailure() *SourceError {
	c.gate <- struct{}{}
	defer c.release()
	return c.lastFailure
}

// HoldGate acquires the refresh gate as if a refresh were in flight and
// returns the function that releases it.
func (c *Coordinator[T]) HoldGate() func() {
	c.gate <- struct{}{}
	return c.release
}
