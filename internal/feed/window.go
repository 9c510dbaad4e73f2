package feed

import "slices"

// Window is the merged, id-unique, newest-first set of messages the client
// renders. The live partition mirrors the latest subscription snapshot; the
// older partition holds pages loaded by scrolling and messages that slid out
// of the live window.
type Window struct {
	live  []Message
	older []Message
	// gaps are unfetched ranges between held messages, newest first.
	gaps []gap

	merged []Message
	dirty  bool
}

// NewWindow returns an empty window.
func NewWindow() *Window {
	return &Window{}
}

// gap is a range the store may hold but the window does not: everything
// strictly older than after and newer than until.
type gap struct {
	after Cursor
	until Message
}

// ApplyLive replaces the live partition with snapshot. Messages that left the
// live window because newer ones arrived move to the older partition. When
// the snapshot shares no message with the previous live partition, the range
// between them is recorded as a gap to be filled with FillGap.
func (w *Window) ApplyLive(snapshot []Message) {
	next := uniqueSorted(snapshot)
	inNext := idSet(next)

	if len(next) > 0 && len(w.live) > 0 && !overlaps(w.live, inNext) {
		oldest := next[len(next)-1]
		for _, m := range w.newestFirst() {
			if !inNext[m.ID] && compareNewestFirst(m, oldest) > 0 {
				w.gaps = append([]gap{{after: oldest.Cursor(), until: m}}, w.gaps...)
				break
			}
		}
	}

	if len(next) > 0 {
		oldest := next[len(next)-1]
		for _, m := range w.live {
			if inNext[m.ID] {
				continue
			}
			if compareNewestFirst(m, oldest) > 0 {
				w.older = append(w.older, m)
			}
		}
	}

	w.live = next
	w.older = slices.DeleteFunc(w.older, func(m Message) bool { return inNext[m.ID] })
	w.older = uniqueSorted(w.older)
	w.dirty = true
}

// AppendOlder merges a page of older messages and reports how many were new.
func (w *Window) AppendOlder(page []Message) int {
	held := w.ids()
	added := 0
	for _, m := range page {
		if held[m.ID] {
			continue
		}
		held[m.ID] = true
		w.older = append(w.older, m)
		added++
	}
	if added > 0 {
		slices.SortFunc(w.older, compareNewestFirst)
		w.dirty = true
	}
	return added
}

// Gap returns the cursor to query for the newest unfilled gap.
func (w *Window) Gap() (Cursor, bool) {
	if len(w.gaps) == 0 {
		return Cursor{}, false
	}
	return w.gaps[0].after, true
}

// FillGap merges a page fetched from Gap's cursor and reports how many
// messages were new. The gap closes once the page reaches held history or
// comes back shorter than pageSize; otherwise it shrinks to the page's
// oldest message.
func (w *Window) FillGap(page []Message, pageSize int) int {
	if len(w.gaps) == 0 {
		return w.AppendOlder(page)
	}
	g := &w.gaps[0]
	closed := len(page) < pageSize
	var oldest *Message
	for i := range page {
		if compareNewestFirst(page[i], g.until) >= 0 {
			closed = true
		}
		if oldest == nil || compareNewestFirst(page[i], *oldest) > 0 {
			oldest = &page[i]
		}
	}
	if closed || oldest == nil {
		w.gaps = w.gaps[1:]
	} else {
		g.after = oldest.Cursor()
	}
	return w.AppendOlder(page)
}

// Oldest returns the oldest held message.
func (w *Window) Oldest() (Message, bool) {
	all := w.newestFirst()
	if len(all) == 0 {
		return Message{}, false
	}
	return all[len(all)-1], true
}

// Len is the number of distinct messages held.
func (w *Window) Len() int {
	return len(w.newestFirst())
}

// Live returns a copy of the live partition, newest first.
func (w *Window) Live() []Message {
	return slices.Clone(w.live)
}

// Ascending returns every held message oldest first, the order they render.
func (w *Window) Ascending() []Message {
	out := slices.Clone(w.newestFirst())
	slices.Reverse(out)
	return out
}

func (w *Window) newestFirst() []Message {
	if !w.dirty && w.merged != nil {
		return w.merged
	}
	merged := make([]Message, 0, len(w.live)+len(w.older))
	merged = append(merged, w.live...)
	inLive := idSet(w.live)
	for _, m := range w.older {
		if !inLive[m.ID] {
			merged = append(merged, m)
		}
	}
	slices.SortFunc(merged, compareNewestFirst)
	w.merged = merged
	w.dirty = false
	return merged
}

func (w *Window) ids() map[string]bool {
	set := make(map[string]bool, len(w.live)+len(w.older))
	for _, m := range w.live {
		set[m.ID] = true
	}
	for _, m := range w.older {
		set[m.ID] = true
	}
	return set
}

func overlaps(msgs []Message, set map[string]bool) bool {
	for _, m := range msgs {
		if set[m.ID] {
			return true
		}
	}
	return false
}

func idSet(msgs []Message) map[string]bool {
	set := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		set[m.ID] = true
	}
	return set
}

// uniqueSorted sorts newest first and keeps the first copy of each id.
func uniqueSorted(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	seen := make(map[string]bool, len(msgs))
	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	slices.SortFunc(out, compareNewestFirst)
	return out
}
