package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertUniqueOrdered(t *testing.T, w *Window) {
	t.Helper()
	asc := w.Ascending()
	seen := map[string]bool{}
	for i, m := range asc {
		require.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
		if i > 0 {
			require.Positive(t, compareNewestFirst(asc[i-1], m), "order broken at %d", i)
		}
	}
}

func TestWindow_ApplyLiveSortsAndDedupes(t *testing.T) {
	w := NewWindow()
	w.ApplyLive([]Message{msg(1), msg(3), msg(2), msg(3)})

	assert.Equal(t, []string{"m001", "m002", "m003"}, ids(w.Ascending()))
	assertUniqueOrdered(t, w)
}

func TestWindow_LiveUpdateKeepsPaginatedHistory(t *testing.T) {
	w := NewWindow()
	w.ApplyLive(newestFirst(11, 20))
	added := w.AppendOlder(newestFirst(6, 10))
	require.Equal(t, 5, added)

	w.ApplyLive(newestFirst(12, 21))

	got := ids(w.Ascending())
	assert.Len(t, got, 16)
	assert.Equal(t, "m006", got[0])
	assert.Equal(t, "m021", got[len(got)-1])
	assertUniqueOrdered(t, w)
}

func TestWindow_MessageSlidingOutOfLiveIsRetained(t *testing.T) {
	w := NewWindow()
	w.ApplyLive(newestFirst(1, 10))
	w.ApplyLive(newestFirst(3, 12))

	assert.Equal(t, 12, w.Len())
	oldest, ok := w.Oldest()
	require.True(t, ok)
	assert.Equal(t, "m001", oldest.ID)
	assert.Len(t, w.Live(), 10)
}

func TestWindow_AppendOlderSkipsHeldIDs(t *testing.T) {
	w := NewWindow()
	w.ApplyLive(newestFirst(5, 14))

	added := w.AppendOlder(append(newestFirst(2, 6), msg(3)))
	assert.Equal(t, 3, added)
	assert.Equal(t, 13, w.Len())
	assertUniqueOrdered(t, w)
}

func TestWindow_LiveCopyWins(t *testing.T) {
	w := NewWindow()
	w.AppendOlder([]Message{msg(1), msg(2)})
	edited := msg(2)
	edited.Text = "live"
	w.ApplyLive([]Message{edited, msg(1)})

	asc := w.Ascending()
	require.Len(t, asc, 2)
	assert.Equal(t, "live", asc[1].Text)
}

func TestWindow_SameTimestampOrderedByID(t *testing.T) {
	a := Message{ID: "a", CreatedAt: base}
	b := Message{ID: "b", CreatedAt: base}
	w := NewWindow()
	w.ApplyLive([]Message{a, b})

	assert.Equal(t, []string{"a", "b"}, ids(w.Ascending()))
}

func TestWindow_Empty(t *testing.T) {
	w := NewWindow()
	_, ok := w.Oldest()
	assert.False(t, ok)
	assert.Zero(t, w.Len())
	w.ApplyLive(nil)
	assert.Empty(t, w.Ascending())
}

func TestWindow_SnapshotJumpRecordsGap(t *testing.T) {
	w := NewWindow()
	w.ApplyLive(newestFirst(1, 10))
	w.ApplyLive(newestFirst(16, 25))

	cur, ok := w.Gap()
	require.True(t, ok)
	assert.Equal(t, msg(16).Cursor(), cur)

	added := w.FillGap(newestFirst(6, 15), 10)
	assert.Equal(t, 5, added)
	_, ok = w.Gap()
	assert.False(t, ok, "page reached held history")

	assert.Equal(t, 25, w.Len())
	assertUniqueOrdered(t, w)
}

func TestWindow_GapFilledAcrossPages(t *testing.T) {
	w := NewWindow()
	w.ApplyLive(newestFirst(1, 3))
	w.ApplyLive(newestFirst(10, 12))

	w.FillGap(newestFirst(7, 9), 3)
	cur, ok := w.Gap()
	require.True(t, ok)
	assert.Equal(t, msg(7).Cursor(), cur)

	w.FillGap(newestFirst(4, 6), 3)
	cur, ok = w.Gap()
	require.True(t, ok, "page stopped short of held history")
	assert.Equal(t, msg(4).Cursor(), cur)

	w.FillGap(newestFirst(1, 3), 3)
	_, ok = w.Gap()
	assert.False(t, ok)
	assert.Equal(t, 12, w.Len())
}

func TestWindow_OverlappingSnapshotHasNoGap(t *testing.T) {
	w := NewWindow()
	w.ApplyLive(newestFirst(1, 10))
	w.ApplyLive(newestFirst(5, 14))

	_, ok := w.Gap()
	assert.False(t, ok)
}
