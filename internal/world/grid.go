package world

import "fmt"

// Grid holds the terrain, bases, explored mask and agent occupancy.
//
// Grid performs no locking of its own. The simulation guards it with a single
// reader/writer lock; the base list is fixed at construction and may be read
// without it.
type Grid struct {
	Width  int
	Height int

	cells    []Cell
	explored []bool
	bases    []Coord

	// Agents standing on each cell. Bases hold any number of agents and never
	// count as occupied.
	occupants map[Coord]int
}

// NewGrid creates an all-empty grid. Base coordinates outside the grid are
// dropped.
func NewGrid(width, height int, bases []Coord) *Grid {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	g := &Grid{
		Width:     width,
		Height:    height,
		cells:     make([]Cell, width*height),
		explored:  make([]bool, width*height),
		occupants: make(map[Coord]int),
	}
	for _, b := range bases {
		if g.InBounds(b) {
			g.bases = append(g.bases, b)
		}
	}
	if len(g.bases) == 0 {
		g.bases = []Coord{{X: 0, Y: 0}}
	}
	return g
}

// InBounds returns true if the coordinate lies on the grid.
func (g *Grid) InBounds(c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < g.Width && c.Y < g.Height
}

func (g *Grid) index(c Coord) int {
	return c.Y*g.Width + c.X
}

// At returns the cell at c; ok is false when c is out of bounds.
func (g *Grid) At(c Coord) (Cell, bool) {
	if !g.InBounds(c) {
		return CellObstacle, false
	}
	return g.cells[g.index(c)], true
}

// SetCell overwrites the category at c. Out-of-bounds writes are ignored.
func (g *Grid) SetCell(c Coord, cell Cell) {
	if !g.InBounds(c) {
		return
	}
	g.cells[g.index(c)] = cell
}

// IsPassable is false for obstacles and anything off the grid.
func (g *Grid) IsPassable(c Coord) bool {
	cell, ok := g.At(c)
	return ok && cell != CellObstacle
}

// Harvest clears a resource cell to empty and returns what it held. Calling it
// on an empty, obstacle or out-of-bounds cell is a no-op.
func (g *Grid) Harvest(c Coord) (Resource, bool) {
	cell, ok := g.At(c)
	if !ok {
		return 0, false
	}
	r, ok := cell.Resource()
	if !ok {
		return 0, false
	}
	g.cells[g.index(c)] = CellEmpty
	return r, true
}

// Bases returns a copy of the base list in placement order.
func (g *Grid) Bases() []Coord {
	out := make([]Coord, len(g.bases))
	copy(out, g.bases)
	return out
}

// IsBase reports whether c is one of the bases.
func (g *Grid) IsBase(c Coord) bool {
	for _, b := range g.bases {
		if b == c {
			return true
		}
	}
	return false
}

// NearestBase returns the base closest to from by Manhattan distance.
// Ties go to the base listed first.
func (g *Grid) NearestBase(from Coord) Coord {
	best := g.bases[0]
	bestDist := Manhattan(from, best)
	for _, b := range g.bases[1:] {
		if d := Manhattan(from, b); d < bestDist {
			best, bestDist = b, d
		}
	}
	return best
}

// Explored reports whether c has been surveyed. Off-grid cells count as explored.
func (g *Grid) Explored(c Coord) bool {
	if !g.InBounds(c) {
		return true
	}
	return g.explored[g.index(c)]
}

// MarkExploredRadius flags every in-bounds cell within Chebyshev distance
// radius of center as explored.
func (g *Grid) MarkExploredRadius(center Coord, radius int) {
	if radius < 0 {
		return
	}
	for y := center.Y - radius; y <= center.Y+radius; y++ {
		for x := center.X - radius; x <= center.X+radius; x++ {
			c := Coord{X: x, Y: y}
			if g.InBounds(c) {
				g.explored[g.index(c)] = true
			}
		}
	}
}

// NearestUnexploredPassable runs a breadth-first search over passable cells
// starting at from (inclusive) and returns the first unexplored one. The
// result is nearest by steps, not by straight-line distance.
func (g *Grid) NearestUnexploredPassable(from Coord) (Coord, bool) {
	if !g.InBounds(from) {
		return Coord{}, false
	}
	visited := make([]bool, len(g.cells))
	visited[g.index(from)] = true
	queue := []Coord{from}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if !g.explored[g.index(cur)] && g.IsPassable(cur) {
			return cur, true
		}
		for _, n := range cur.Neighbors() {
			if !g.IsPassable(n) || visited[g.index(n)] {
				continue
			}
			visited[g.index(n)] = true
			queue = append(queue, n)
		}
	}
	return Coord{}, false
}

// DepositReach bounds how far NextInDeposit walks from the starting cell.
// Harvested cells leave holes in a deposit, so the search crosses any
// passable cell rather than only cells of the same category.
const DepositReach = 3

// NextInDeposit returns the nearest cell other than c that still holds r,
// searching passable cells up to DepositReach steps away. The starting cell
// itself may already be empty.
func (g *Grid) NextInDeposit(c Coord, r Resource) (Coord, bool) {
	if !g.InBounds(c) {
		return Coord{}, false
	}
	want := r.Cell()
	depth := map[Coord]int{c: 0}
	queue := []Coord{c}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur != c && g.cells[g.index(cur)] == want {
			return cur, true
		}
		if depth[cur] == DepositReach {
			continue
		}
		for _, n := range cur.Neighbors() {
			if _, seen := depth[n]; seen || !g.IsPassable(n) {
				continue
			}
			depth[n] = depth[cur] + 1
			queue = append(queue, n)
		}
	}
	return Coord{}, false
}

// Occupied reports whether another agent stands on c. Bases are shared and
// never occupied.
func (g *Grid) Occupied(c Coord) bool {
	if g.IsBase(c) {
		return false
	}
	return g.occupants[c] > 0
}

// Occupy records an agent standing on c.
func (g *Grid) Occupy(c Coord) {
	if g.InBounds(c) {
		g.occupants[c]++
	}
}

// Vacate removes one agent from c.
func (g *Grid) Vacate(c Coord) {
	if n := g.occupants[c]; n > 1 {
		g.occupants[c] = n - 1
	} else {
		delete(g.occupants, c)
	}
}

// Relocate moves one agent's occupancy from one cell to another.
func (g *Grid) Relocate(from, to Coord) {
	if from == to {
		return
	}
	g.Vacate(from)
	g.Occupy(to)
}

// Snapshot is an immutable copy of the grid for readers.
type Snapshot struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Cells    []Cell  `json:"cells"`    // Row-major, Width*Height
	Explored []bool  `json:"explored"` // Row-major, Width*Height
	Bases    []Coord `json:"bases"`
}

// Snapshot copies the grid state. Callers must hold at least a read lock.
func (g *Grid) Snapshot() Snapshot {
	s := Snapshot{
		Width:    g.Width,
		Height:   g.Height,
		Cells:    make([]Cell, len(g.cells)),
		Explored: make([]bool, len(g.explored)),
		Bases:    g.Bases(),
	}
	copy(s.Cells, g.cells)
	copy(s.Explored, g.explored)
	return s
}

// At returns the cell at c in the snapshot.
func (s Snapshot) At(c Coord) Cell {
	if c.X < 0 || c.Y < 0 || c.X >= s.Width || c.Y >= s.Height {
		return CellObstacle
	}
	return s.Cells[c.Y*s.Width+c.X]
}

// Rows renders the snapshot as one glyph string per row.
func (s Snapshot) Rows() []string {
	rows := make([]string, s.Height)
	buf := make([]byte, s.Width)
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			buf[x] = s.Cells[y*s.Width+x].Symbol()
		}
		rows[y] = string(buf)
	}
	return rows
}

// CellCounts returns a summary of the cell category distribution.
func CellCounts(g *Grid) map[Cell]int {
	counts := make(map[Cell]int)
	for _, c := range g.cells {
		counts[c]++
	}
	return counts
}

// String returns a summary of the grid.
func (g *Grid) String() string {
	return fmt.Sprintf("Grid(%dx%d, bases=%d)", g.Width, g.Height, len(g.bases))
}
