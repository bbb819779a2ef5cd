package txn

import "coursedb/internal/primitives"

// Controller is the thin begin/commit/abort surface over a BufferPool. It
// holds no state beyond an id generator, per spec §4.F.
type Controller struct {
	pool *BufferPool
}

// NewController wraps pool with a transaction-lifecycle surface.
func NewController(pool *BufferPool) *Controller {
	return &Controller{pool: pool}
}

// Begin allocates a fresh transaction id.
func (c *Controller) Begin() primitives.TransactionID {
	return primitives.NewTransactionID()
}

// Commit flushes and releases every lock tid holds.
func (c *Controller) Commit(tid primitives.TransactionID) error {
	return c.pool.TransactionComplete(tid, true)
}

// Abort discards tid's dirty pages and releases every lock it holds.
func (c *Controller) Abort(tid primitives.TransactionID) error {
	return c.pool.TransactionComplete(tid, false)
}
