// Package structures provides a few generic data structures.
package structures

// Set is an unordered collection of distinct elements.
type Set[Elem comparable] map[Elem]struct{}

// NewSet makes a Set containing the provided elements.
func NewSet[Elem comparable](elems ...Elem) Set[Elem] {
	s := make(Set[Elem], len(elems))
	for _, e := range elems {
		s.Add(e)
	}
	return s
}

// Add adds the element to the set. If the element was already in the set, nothing changes.
func (s Set[Elem]) Add(e Elem) {
	s[e] = struct{}{}
}

// Has checks whether the element is already in the set.
func (s Set[Elem]) Has(e Elem) bool {
	_, ok := s[e]
	return ok
}

// Remove removes the element from the set, if it was in the set.
func (s Set[Elem]) Remove(e Elem) {
	delete(s, e)
}
