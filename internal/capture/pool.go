package capture

import "sync"

// framePool pools pixel buffers for a fixed frame size.
// A sampler records one region for its whole lifetime, so a single size works.
type framePool struct {
	mu   sync.Mutex
	pool sync.Pool
	size int
}

func (p *framePool) Get(size int) []byte {
	p.mu.Lock()
	if p.size != size {
		// Resolution changed, drop buffers of the old size
		p.size = size
		p.pool = sync.Pool{}
		p.mu.Unlock()
		return make([]byte, size)
	}
	p.mu.Unlock()

	if v := p.pool.Get(); v != nil {
		return *(v.(*[]byte))
	}
	return make([]byte, size)
}

func (p *framePool) Put(buf []byte) {
	p.mu.Lock()
	match := p.size == len(buf)
	p.mu.Unlock()
	if match {
		p.pool.Put(&buf)
	}
}
