package ingest

import "sync"

// connPool is a FIFO of Connection handles sized to the configured source
// count, borrowed by workers and always returned. A buffered channel gives
// FIFO ordering and round-robin fairness for free.
type connPool struct {
	ch       chan *Connection
	size     int
	stopOnce sync.Once
	stopCh   chan struct{}
}

func newConnPool(size int) *connPool {
	return &connPool{
		ch:     make(chan *Connection, size),
		size:   size,
		stopCh: make(chan struct{}),
	}
}

func (p *connPool) put(c *Connection) {
	p.ch <- c
}

// take blocks until a connection is available or the pool is told to stop
// accepting waiters, in which case it returns (nil, false).
func (p *connPool) take() (*Connection, bool) {
	select {
	case c := <-p.ch:
		return c, true
	case <-p.stopCh:
		return nil, false
	}
}

// tryTake returns a connection without blocking, or (nil, false) if none is
// currently sitting in the pool.
func (p *connPool) tryTake() (*Connection, bool) {
	select {
	case c := <-p.ch:
		return c, true
	default:
		return nil, false
	}
}

// inUse reports how many connections are currently checked out.
func (p *connPool) inUse() int {
	return p.size - len(p.ch)
}

// closeWaiters unblocks every goroutine parked in take.
func (p *connPool) closeWaiters() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
}
