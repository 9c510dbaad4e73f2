package feed

// Block is one rendered message: its id and height in rows.
type Block struct {
	ID     string
	Height int
}

// Layout maps rendered blocks, top to bottom, onto row offsets.
type Layout struct {
	starts map[string]int
	order  []string
	total  int
}

// Anchor pins the viewport to a message: the viewport's top row sits Delta
// rows below the first row of message ID.
type Anchor struct {
	ID    string
	Delta int
}

// NewLayout lays blocks out top to bottom.
func NewLayout(blocks []Block) Layout {
	l := Layout{
		starts: make(map[string]int, len(blocks)),
		order:  make([]string, 0, len(blocks)),
	}
	for _, b := range blocks {
		l.starts[b.ID] = l.total
		l.order = append(l.order, b.ID)
		h := b.Height
		if h < 1 {
			h = 1
		}
		l.total += h
	}
	return l
}

// Height is the total number of rows.
func (l Layout) Height() int {
	return l.total
}

// Start returns the first row of id.
func (l Layout) Start(id string) (int, bool) {
	row, ok := l.starts[id]
	return row, ok
}

// Anchor returns the anchor for a viewport whose top row is yOffset: the
// block covering that row.
func (l Layout) Anchor(yOffset int) (Anchor, bool) {
	if len(l.order) == 0 {
		return Anchor{}, false
	}
	anchor := Anchor{ID: l.order[0], Delta: yOffset}
	for _, id := range l.order {
		start := l.starts[id]
		if start > yOffset {
			break
		}
		anchor = Anchor{ID: id, Delta: yOffset - start}
	}
	return anchor, true
}

// AnchorOffset returns the yOffset that puts a back where it was.
func (l Layout) AnchorOffset(a Anchor) (int, bool) {
	start, ok := l.starts[a.ID]
	if !ok {
		return 0, false
	}
	return start + a.Delta, true
}
