package utils

import (
	"hash/fnv"
	"sync"
)

// KeyLock serializes work per key using a fixed set of striped mutexes.
// Distinct keys may share a stripe, which only costs some parallelism.
type KeyLock struct {
	stripes []sync.Mutex
}

func NewKeyLock(stripes int) *KeyLock {
	if stripes <= 0 {
		stripes = 1
	}
	return &KeyLock{stripes: make([]sync.Mutex, stripes)}
}

// Lock blocks until key is held and returns the matching unlock func.
func (l *KeyLock) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
