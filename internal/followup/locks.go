package followup

import "sync"

// contactLocks hands out one mutex per contact so no two engine operations
// for the same contact run concurrently. A reply racing a scheduled advance
// would otherwise lose updates on the journey record.
type contactLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func newContactLocks() *contactLocks {
	return &contactLocks{locks: make(map[uint]*sync.Mutex)}
}

func (c *contactLocks) forContact(id uint) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[id] = lock
	}
	return lock
}
