package logger

import "sync"

// keySet is an insertion-ordered set of string fields.
type keySet struct {
	mu     sync.RWMutex
	order  []string
	values map[string]string
}

func newKeySet() *keySet {
	return &keySet{values: make(map[string]string)}
}

func (k *keySet) put(key, value string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.values[key]; !ok {
		k.order = append(k.order, key)
	}
	k.values[key] = value
}

func (k *keySet) remove(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.values[key]; !ok {
		return false
	}
	delete(k.values, key)
	for i, name := range k.order {
		if name == key {
			k.order = append(k.order[:i], k.order[i+1:]...)
			break
		}
	}
	return true
}

func (k *keySet) clear() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.order = nil
	k.values = make(map[string]string)
}

func (k *keySet) copyTo(dst map[string]any) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, name := range k.order {
		dst[name] = k.values[name]
	}
}
