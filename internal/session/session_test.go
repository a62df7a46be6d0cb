package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(t *testing.T, h *History, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		require.NoError(t, h.Append(Turn{
			Human: fmt.Sprintf("q%d", i),
			AI:    fmt.Sprintf("a%d", i),
		}))
	}
}

func TestHistory_AllKeepsChronologicalOrder(t *testing.T) {
	for _, n := range []int{0, 1, 5, 12, 40} {
		h := &History{}
		fill(t, h, n)

		all := h.All()
		require.Len(t, all, n)
		for i, turn := range all {
			assert.Equal(t, fmt.Sprintf("q%d", i+1), turn.Human)
			assert.Equal(t, fmt.Sprintf("a%d", i+1), turn.AI)
			assert.False(t, turn.CreatedAt.IsZero())
		}
	}
}

func TestHistory_RecentReturnsMostRecentTail(t *testing.T) {
	for _, n := range []int{0, 3, 10, 12, 25} {
		for _, k := range []int{1, 3, 10, 30} {
			h := &History{}
			fill(t, h, n)

			recent := h.Recent(k)
			want := min(k, n)
			require.Len(t, recent, want, "n=%d k=%d", n, k)
			for i, turn := range recent {
				idx := n - want + i + 1
				assert.Equal(t, fmt.Sprintf("q%d", idx), turn.Human, "n=%d k=%d", n, k)
			}
		}
	}
}

func TestHistory_RecentTwelveTurnsWindowTen(t *testing.T) {
	h := &History{}
	fill(t, h, 12)

	recent := h.Recent(10)
	require.Len(t, recent, 10)
	assert.Equal(t, "q3", recent[0].Human)
	assert.Equal(t, "q12", recent[9].Human)
	assert.Len(t, h.All(), 12)
}

func TestHistory_RecentNonPositive(t *testing.T) {
	h := &History{}
	fill(t, h, 3)
	assert.Empty(t, h.Recent(0))
	assert.Empty(t, h.Recent(-2))
}

func TestHistory_AppendRejectsIncompleteTurn(t *testing.T) {
	h := &History{}
	assert.ErrorIs(t, h.Append(Turn{Human: "hi"}), ErrIncompleteTurn)
	assert.ErrorIs(t, h.Append(Turn{AI: "hello"}), ErrIncompleteTurn)
	assert.Equal(t, 0, h.Len())
}

func TestHistory_ViewsAreCopies(t *testing.T) {
	h := &History{}
	fill(t, h, 2)

	all := h.All()
	all[0].Human = "changed"
	recent := h.Recent(1)
	recent[0].AI = "changed"

	assert.Equal(t, "q1", h.All()[0].Human)
	assert.Equal(t, "a2", h.All()[1].AI)
}

func TestHistory_ConcurrentAppend(t *testing.T) {
	h := &History{}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = h.Append(Turn{Human: fmt.Sprint(i), AI: "ok"})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, h.Len())
}

func TestNew(t *testing.T) {
	s1 := New()
	s2 := New()
	assert.NotEmpty(t, s1.ID)
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, 0, s1.History.Len())
	assert.NotSame(t, s1.History, s2.History)
}
