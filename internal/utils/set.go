package utils

// Set of comparable keys.
type Set[T comparable] map[T]struct{}

// MakeSet returns an empty Set, with room for size keys if given.
func MakeSet[T comparable](size ...int) Set[T] {
	if len(size) == 0 {
		return make(Set[T])
	}
	return make(Set[T], size[0])
}

// Has returns whether key is in the set.
func (s Set[T]) Has(key T) bool {
	_, found := s[key]
	return found
}

// Insert keys into the set.
func (s Set[T]) Insert(keys ...T) {
	for _, key := range keys {
		s[key] = struct{}{}
	}
}
