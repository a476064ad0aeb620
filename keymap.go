package density

// KeyMap maps row keys to dense indices [0, N). It is built once and never
// modified afterwards.
type KeyMap struct {
	index map[string]int
	keys  []string // keys[i] is the key of index i
}

// NewKeyMap assigns every key the index of its position in keys. Keys are
// expected to be unique; for duplicates the first occurrence wins.
func NewKeyMap(keys []string) *KeyMap {
	km := &KeyMap{
		index: make(map[string]int, len(keys)),
		keys:  make([]string, 0, len(keys)),
	}
	for _, k := range keys {
		if _, ok := km.index[k]; ok {
			continue
		}
		km.index[k] = len(km.keys)
		km.keys = append(km.keys, k)
	}
	return km
}

// createKeyMap builds the KeyMap of the given points with progress.
func createKeyMap(points []*dataPoint, m Monitor) (*KeyMap, error) {
	km := &KeyMap{
		index: make(map[string]int, len(points)),
		keys:  make([]string, 0, len(points)),
	}
	for i, p := range points {
		if err := stepProgress(m, i+1, len(points), "Reading key for row %d of %d."); err != nil {
			return nil, err
		}
		if _, ok := km.index[p.key]; ok {
			continue
		}
		km.index[p.key] = len(km.keys)
		km.keys = append(km.keys, p.key)
	}
	return km, nil
}

// Index returns the index of key or an *UnknownRowError.
func (km *KeyMap) Index(key string) (int, error) {
	idx, ok := km.index[key]
	if !ok {
		return -1, &UnknownRowError{Key: key}
	}
	return idx, nil
}

// Contains reports whether key is part of the map.
func (km *KeyMap) Contains(key string) bool {
	_, ok := km.index[key]
	return ok
}

// Key returns the key of index idx.
func (km *KeyMap) Key(idx int) string { return km.keys[idx] }

// Keys returns the keys in index order. The slice must not be modified.
func (km *KeyMap) Keys() []string { return km.keys }

// Size returns the number of keys.
func (km *KeyMap) Size() int { return len(km.keys) }
