package firmware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemFSReadWriteExistsRemove(t *testing.T) {
	fs := NewMemFS()
	assert.False(t, fs.Exists("a.txt"))

	fs.Write("a.txt", []byte("hello"))
	assert.True(t, fs.Exists("a.txt"))

	data, ok := fs.Read("a.txt")
	assert.True(t, ok)
	assert.Equal(t, []byte("hello"), data)

	fs.Remove("a.txt")
	assert.False(t, fs.Exists("a.txt"))
	_, ok = fs.Read("a.txt")
	assert.False(t, ok)
}

func TestMemFSWriteCopiesData(t *testing.T) {
	fs := NewMemFS()
	buf := []byte("original")
	fs.Write("f", buf)
	buf[0] = 'X'

	data, _ := fs.Read("f")
	assert.Equal(t, []byte("original"), data, "MemFS must not alias the caller's backing array")
}
