package toposort

import "sync"

// SymbolTable provides a bidirectional mapping between node names and
// dense integer IDs. IDs are assigned in interning order, which is what
// makes Graph.Toposort break ties by insertion order.
type SymbolTable struct {
	strToID map[string]int
	idToStr []string
	lock    sync.RWMutex
}

// NewSymbolTable creates an empty SymbolTable.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		strToID: make(map[string]int),
		idToStr: make([]string, 0),
	}
}

// Intern returns the unique ID for the given name, assigning the next
// dense ID when the name is new.
func (table *SymbolTable) Intern(name string) int {
	table.lock.RLock()
	symbolID, exists := table.strToID[name]
	table.lock.RUnlock()

	if exists {
		return symbolID
	}

	table.lock.Lock()
	defer table.lock.Unlock()

	// Double check under the write lock.
	if existingID, found := table.strToID[name]; found {
		return existingID
	}

	symbolID = len(table.idToStr)
	table.idToStr = append(table.idToStr, name)
	table.strToID[name] = symbolID

	return symbolID
}

// Lookup returns the ID for the name without interning it.
func (table *SymbolTable) Lookup(name string) (int, bool) {
	table.lock.RLock()
	defer table.lock.RUnlock()

	id, ok := table.strToID[name]

	return id, ok
}

// Resolve returns the name associated with the given ID, or an empty
// string when the ID is out of range.
func (table *SymbolTable) Resolve(id int) string {
	table.lock.RLock()
	defer table.lock.RUnlock()

	if id < 0 || id >= len(table.idToStr) {
		return ""
	}

	return table.idToStr[id]
}

// Len returns the number of interned symbols.
func (table *SymbolTable) Len() int {
	table.lock.RLock()
	defer table.lock.RUnlock()

	return len(table.idToStr)
}
