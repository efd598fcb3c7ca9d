package pool

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scratch struct {
	Name  string
	Items []int
}

func (s *scratch) Reset() {
	s.Name = ""
	s.Items = s.Items[:0]
}

func TestPool_GetBuildsFreshObject(t *testing.T) {
	p := New(func() *scratch { return &scratch{} })
	obj := p.Get()
	require.NotNil(t, obj)
	assert.Empty(t, obj.Name)
}

func TestPool_PutResets(t *testing.T) {
	p := New(func() *scratch { return &scratch{} })

	obj := p.Get()
	obj.Name = "dump"
	obj.Items = append(obj.Items, 1, 2, 3)
	p.Put(obj)

	// Put resets the object even if the pool hands back a new one
	assert.Empty(t, obj.Name)
	assert.Empty(t, obj.Items)

	again := p.Get()
	assert.Empty(t, again.Name)
	assert.Empty(t, again.Items)
}

func TestPool_Buffers(t *testing.T) {
	p := New(func() *bytes.Buffer { return new(bytes.Buffer) })
	buf := p.Get()
	buf.WriteString("goroutine 1 [running]:")
	p.Put(buf)
	assert.Equal(t, 0, buf.Len())
}
