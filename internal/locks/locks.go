// Package locks provides per-file reader/writer locks keyed by file
// identity. The semantic tree for a file is shared mutable state: reads of
// the tree take the file's read lock, structural splices take the write
// lock. Locks are never nested across files.
package locks

import "sync"

// Provider hands out scoped lock acquisition for files. The zero value is
// not usable; construct with NewProvider.
type Provider struct {
	mu    sync.Mutex
	files map[string]*sync.RWMutex
}

func NewProvider() *Provider {
	return &Provider{files: make(map[string]*sync.RWMutex)}
}

func (p *Provider) lockFor(file string) *sync.RWMutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.files[file]
	if !ok {
		l = &sync.RWMutex{}
		p.files[file] = l
	}
	return l
}

// WithReadLock runs fn holding the file's read lock. The lock is released
// on every exit path, panics included.
func (p *Provider) WithReadLock(file string, fn func() error) error {
	l := p.lockFor(file)
	l.RLock()
	defer l.RUnlock()
	return fn()
}

// WithWriteLock runs fn holding the file's exclusive write lock.
func (p *Provider) WithWriteLock(file string, fn func() error) error {
	l := p.lockFor(file)
	l.Lock()
	defer l.Unlock()
	return fn()
}
