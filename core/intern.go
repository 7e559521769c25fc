package core

// SymbolTable interns the strings of one scan pass (authors, paths and branch names)
// and gives each a dense integer ID. Its lifetime is one conversion run.
type SymbolTable struct {
	strToID map[string]int
	idToStr []string
}

// NewSymbolTable creates a new SymbolTable.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		strToID: make(map[string]int),
		idToStr: make([]string, 0),
	}
}

// Intern returns the unique ID for the given string, assigning a new one on first use.
func (table *SymbolTable) Intern(name string) int {
	if id, ok := table.strToID[name]; ok {
		return id
	}
	id := len(table.idToStr)
	table.idToStr = append(table.idToStr, name)
	table.strToID[name] = id
	return id
}

// Lookup returns the ID of an already interned string.
func (table *SymbolTable) Lookup(name string) (int, bool) {
	id, ok := table.strToID[name]
	return id, ok
}

// Resolve returns the string associated with the given ID.
// Returns an empty string if the ID is invalid.
func (table *SymbolTable) Resolve(id int) string {
	if id < 0 || id >= len(table.idToStr) {
		return ""
	}
	return table.idToStr[id]
}

// String returns the canonical copy of s, so equal strings share one backing array.
func (table *SymbolTable) String(s string) string {
	return table.idToStr[table.Intern(s)]
}

// Len returns the number of symbols in the table.
func (table *SymbolTable) Len() int {
	return len(table.idToStr)
}
