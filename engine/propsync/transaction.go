package propsync

import "strings"

// Entry is one changed property with its encoded value
type Entry struct {
	Name  string
	Value []byte
}

// Transaction is an ordered batch of property changes of one instance
type Transaction struct {
	Entries []Entry
}

// IsEmpty returns if the transaction carries no change
func (txn Transaction) IsEmpty() bool {
	return len(txn.Entries) == 0
}

// Len returns the number of entries
func (txn Transaction) Len() int {
	return len(txn.Entries)
}

// Names returns the property names in transaction order
func (txn Transaction) Names() []string {
	names := make([]string, len(txn.Entries))
	for i, e := range txn.Entries {
		names[i] = e.Name
	}
	return names
}

func (txn Transaction) String() string {
	return "Transaction{" + strings.Join(txn.Names(), ",") + "}"
}
