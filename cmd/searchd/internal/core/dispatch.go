package core

// GoroutineDispatcher runs every handler on its own goroutine with no upper
// bound. This is the default.
type GoroutineDispatcher struct{}

func (GoroutineDispatcher) Dispatch(fn func()) {
	go fn()
}

// PoolDispatcher admits at most a fixed number of concurrent handlers. When
// all slots are taken, Dispatch blocks, which in turn stalls the accept loop
// and leaves new peers waiting in the kernel backlog.
type PoolDispatcher struct {
	slots chan struct{}
}

// NewPoolDispatcher creates a dispatcher with size slots. size must be positive.
func NewPoolDispatcher(size int) *PoolDispatcher {
	if size < 1 {
		size = 1
	}
	return &PoolDispatcher{slots: make(chan struct{}, size)}
}

func (p *PoolDispatcher) Dispatch(fn func()) {
	p.slots <- struct{}{}
	go func() {
		defer func() { <-p.slots }()
		fn()
	}()
}

// Size returns the number of slots.
func (p *PoolDispatcher) Size() int {
	return cap(p.slots)
}

// InUse returns how many slots are currently taken.
func (p *PoolDispatcher) InUse() int {
	return len(p.slots)
}
