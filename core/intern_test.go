package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolTable_Intern(t *testing.T) {
	st := NewSymbolTable()

	id1 := st.Intern("alice")
	id2 := st.Intern("bob")
	id3 := st.Intern("alice")

	assert.NotEqual(t, id1, id2)
	assert.Equal(t, id1, id3)
	assert.Equal(t, 2, st.Len())
}

func TestSymbolTable_Resolve(t *testing.T) {
	st := NewSymbolTable()

	id := st.Intern("RELENG_1")
	assert.Equal(t, "RELENG_1", st.Resolve(id))
	assert.Empty(t, st.Resolve(999))
	assert.Empty(t, st.Resolve(-1))

	got, ok := st.Lookup("RELENG_1")
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = st.Lookup("RELENG_2")
	assert.False(t, ok)
}

func TestSymbolTable_String(t *testing.T) {
	st := NewSymbolTable()
	a := st.String(string([]byte("src/main.c")))
	b := st.String(string([]byte("src/main.c")))
	assert.Equal(t, a, b)
	assert.Equal(t, 1, st.Len())
}
