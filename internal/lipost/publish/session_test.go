package publish

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))
	exact := strings.Repeat("a", 100)
	assert.Equal(t, exact, Preview(exact))
	assert.Equal(t, exact+"...", Preview(exact+"b"))
}

func TestSessionHistory(t *testing.T) {
	s := NewSession("tok")
	assert.NotEmpty(t, s.ID)

	_, ok := s.Last()
	assert.False(t, ok)

	s.Append(PostRecord{ID: "a"})
	s.Append(PostRecord{ID: "b"})
	s.Append(PostRecord{ID: "a"})
	s.Append(PostRecord{ID: "c"})

	hist := s.History()
	hist[0].ID = "mutated"
	assert.Equal(t, "a", s.History()[0].ID)

	assert.Equal(t, 2, s.Remove("a"))
	assert.Equal(t, 0, s.Remove("missing"))
	ids := func() []string {
		var out []string
		for _, r := range s.History() {
			out = append(out, r.ID)
		}
		return out
	}
	assert.Equal(t, []string{"b", "c"}, ids())

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, "c", last.ID)

	s.Remove("c")
	_, ok = s.Last()
	assert.False(t, ok)
}

func TestSessionConcurrentAppendRemove(t *testing.T) {
	s := NewSession("tok")
	s.Append(PostRecord{ID: "gone"})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(PostRecord{ID: fmt.Sprint(i)})
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Remove("gone")
	}()
	wg.Wait()

	assert.Len(t, s.History(), 50)
}

func TestStore(t *testing.T) {
	st := NewStore()
	s := st.Create("tok")

	got, ok := st.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, st.Len())

	st.Delete(s.ID)
	_, ok = st.Get(s.ID)
	assert.False(t, ok)
}
