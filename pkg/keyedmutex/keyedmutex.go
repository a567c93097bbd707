package keyedmutex

import "sync"

// KeyedMutex 提供按键(key)粒度的互斥锁。
// 同一个key上的操作互相串行，不同key之间互不阻塞。
// 本项目用它来串行化同一个投票(poll)上的所有变更操作。
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// entry 记录某个key当前的锁和引用计数。
// 引用计数归零时条目被回收，避免map无限增长。
type entry struct {
	lock     sync.Mutex
	refCount int
}

// New 创建一个新的KeyedMutex。
func New() *KeyedMutex {
	return &KeyedMutex{
		entries: make(map[string]*entry),
	}
}

// Lock 获取指定key的互斥锁。必须与Unlock成对使用。
func (km *KeyedMutex) Lock(key string) {
	km.mu.Lock()
	e, ok := km.entries[key]
	if !ok {
		e = &entry{}
		km.entries[key] = e
	}
	e.refCount++
	km.mu.Unlock()

	e.lock.Lock()
}

// Unlock 释放指定key的互斥锁。
// 对未锁定的key调用Unlock会panic，与sync.Mutex的行为一致。
func (km *KeyedMutex) Unlock(key string) {
	km.mu.Lock()
	e, ok := km.entries[key]
	if !ok {
		km.mu.Unlock()
		panic("keyedmutex: 对未锁定的key调用Unlock: " + key)
	}
	e.refCount--
	if e.refCount == 0 {
		delete(km.entries, key)
	}
	km.mu.Unlock()

	e.lock.Unlock()
}
