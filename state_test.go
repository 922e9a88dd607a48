package rewind_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/rewind"
)

func TestStore(t *testing.T) {
	s := rewind.NewStore[string](nil)
	assert.Equal(t, 0, s.Len())

	_, err := s.Get("missing")
	assert.ErrorIs(t, err, rewind.ErrNotFound)

	s.Apply(rewind.Set("b", "two"))
	s.Apply(rewind.Set("a", "one"))

	v, err := s.Get("a")
	assert.NoError(t, err)
	assert.Equal(t, "one", v)

	v, ok := s.Lookup("b")
	assert.True(t, ok)
	assert.Equal(t, "two", v)

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []rewind.Key{"a", "b"}, s.Keys())

	s.Apply(rewind.Delete[string]("a"))
	_, ok = s.Lookup("a")
	assert.False(t, ok)
}

func TestStoreIdentity(t *testing.T) {
	a := rewind.NewStore[int](nil)
	b := rewind.NewStore[int](nil)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, a.ID(), a.ID())
}

func TestStoreContents(t *testing.T) {
	type item struct{ tags *[]string }
	copies := 0
	s := rewind.NewStore[item](func(i item) item {
		copies++
		tags := append([]string(nil), (*i.tags)...)
		return item{tags: &tags}
	})

	tags := []string{"x"}
	s.Apply(rewind.Set("a", item{tags: &tags}))

	contents := s.Contents()
	assert.Equal(t, 1, copies)
	(*contents["a"].tags)[0] = "changed"
	contents["b"] = item{tags: &tags}

	v, err := s.Get("a")
	assert.NoError(t, err)
	assert.Equal(t, []string{"x"}, *v.tags)
	assert.Equal(t, 1, s.Len())
}
