package common

import "sort"

// StringSet is a set of strings
type StringSet map[string]struct{}

// Contains checks if Stringset contains the string
func (ss StringSet) Contains(elem string) bool {
	_, ok := ss[elem]
	return ok
}

// Add adds the string to StringSet
func (ss StringSet) Add(elem string) {
	ss[elem] = struct{}{}
}

// Remove removes the string from StringList
func (ss StringSet) Remove(elem string) {
	delete(ss, elem)
}

// ToList convert StringSet to a sorted string slice
func (ss StringSet) ToList() []string {
	keys := make([]string, 0, len(ss))
	for s := range ss {
		keys = append(keys, s)
	}
	sort.Strings(keys)
	return keys
}

// ObjectIDSet is a set of ObjectIDs
type ObjectIDSet map[ObjectID]struct{}

// Add adds an ObjectID
func (es ObjectIDSet) Add(id ObjectID) {
	es[id] = struct{}{}
}

// Del removes an ObjectID
func (es ObjectIDSet) Del(id ObjectID) {
	delete(es, id)
}

// Contains checks if the ObjectID is in the set
func (es ObjectIDSet) Contains(id ObjectID) bool {
	_, ok := es[id]
	return ok
}

// ToList returns the IDs in ascending order
func (es ObjectIDSet) ToList() []ObjectID {
	list := make([]ObjectID, 0, len(es))
	for id := range es {
		list = append(list, id)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i] < list[j]
	})
	return list
}
