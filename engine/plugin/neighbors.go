package plugin

import (
	"sort"

	"github.com/goreplica/goreplica/engine/reflection"
)

// Neighbor is a server a client may be handed over to
type Neighbor struct {
	Name    string `msgpack:"name"`
	Address string `msgpack:"address"`
}

// NeighborList is the value of the Neighbors property, sorted by name
type NeighborList struct {
	Neighbors []Neighbor `msgpack:"neighbors"`
}

// ServerNeighbors publishes the neighbor servers of a server
type ServerNeighbors struct {
	Plugin

	List NeighborList
}

// DescribePlugin returns the properties of ServerNeighbors
func (sn *ServerNeighbors) DescribePlugin() []*reflection.PropertyDescriptor {
	return []*reflection.PropertyDescriptor{
		reflection.NewProperty("Neighbors", reflection.KindStruct,
			func(o interface{}) interface{} { return o.(*ServerNeighbors).List },
			func(o interface{}, v interface{}) { o.(*ServerNeighbors).List = v.(NeighborList) }).
			WithStruct(NeighborList{}).MarkSynced(),
	}
}

// Create seeds the neighbors from the [neighbors] config
func (sn *ServerNeighbors) Create() {
	neighbors := sn.Manager().Config().Neighbors
	if len(neighbors) == 0 {
		return
	}
	list := NeighborList{}
	for name, addr := range neighbors {
		list.Neighbors = append(list.Neighbors, Neighbor{Name: name, Address: addr})
	}
	sn.set(list)
}

func (sn *ServerNeighbors) set(list NeighborList) {
	sort.Slice(list.Neighbors, func(i, j int) bool {
		return list.Neighbors[i].Name < list.Neighbors[j].Name
	})
	sn.Set("Neighbors", list)
}

// Neighbors returns a copy of the neighbor list
func (sn *ServerNeighbors) Neighbors() []Neighbor {
	return append([]Neighbor(nil), sn.List.Neighbors...)
}

// Neighbor returns the address of a neighbor
func (sn *ServerNeighbors) Neighbor(name string) (string, bool) {
	for _, n := range sn.List.Neighbors {
		if n.Name == name {
			return n.Address, true
		}
	}
	return "", false
}

// AddNeighbor adds or replaces a neighbor
func (sn *ServerNeighbors) AddNeighbor(name, addr string) {
	list := NeighborList{Neighbors: make([]Neighbor, 0, len(sn.List.Neighbors)+1)}
	for _, n := range sn.List.Neighbors {
		if n.Name != name {
			list.Neighbors = append(list.Neighbors, n)
		}
	}
	list.Neighbors = append(list.Neighbors, Neighbor{Name: name, Address: addr})
	sn.set(list)
}

// RemoveNeighbor removes a neighbor, returns false if it does not exist
func (sn *ServerNeighbors) RemoveNeighbor(name string) bool {
	if _, ok := sn.Neighbor(name); !ok {
		return false
	}
	list := NeighborList{}
	for _, n := range sn.List.Neighbors {
		if n.Name != name {
			list.Neighbors = append(list.Neighbors, n)
		}
	}
	sn.set(list)
	return true
}
