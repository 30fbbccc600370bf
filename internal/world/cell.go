// Package world provides the rectangular grid, cell categories, and spatial
// queries shared by every agent in the simulation.
// Coordinates are (X, Y) with X growing right and Y growing down.
package world

// Coord is a position on the grid.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns c offset by d.
func (c Coord) Add(d Coord) Coord {
	return Coord{X: c.X + d.X, Y: c.Y + d.Y}
}

// Cell is the terrain category of one grid position.
type Cell uint8

const (
	CellEmpty    Cell = iota // Open ground
	CellObstacle             // Impassable rock
	CellEnergy               // Energy deposit
	CellMineral              // Mineral deposit
	CellScience              // Site of scientific interest
)

// Resource enumerates the harvestable categories. A resource cell becomes
// CellEmpty exactly once, when it is harvested.
type Resource uint8

const (
	ResourceEnergy Resource = iota
	ResourceMineral
	ResourceScience
)

// NumResources is the number of resource categories.
const NumResources = 3

// Resource returns the resource category held by the cell, if any.
func (c Cell) Resource() (Resource, bool) {
	switch c {
	case CellEnergy:
		return ResourceEnergy, true
	case CellMineral:
		return ResourceMineral, true
	case CellScience:
		return ResourceScience, true
	default:
		return 0, false
	}
}

// Cell returns the cell category that holds r.
func (r Resource) Cell() Cell {
	switch r {
	case ResourceEnergy:
		return CellEnergy
	case ResourceMineral:
		return CellMineral
	default:
		return CellScience
	}
}

// ResourceSet is a bitmask of resource categories. Agents use it as their
// capability set: what a scout can sense, what a hauler can extract.
type ResourceSet uint8

// AllResources contains every category.
const AllResources ResourceSet = 1<<NumResources - 1

// SetOf builds a set from the given categories.
func SetOf(rs ...Resource) ResourceSet {
	var s ResourceSet
	for _, r := range rs {
		s |= 1 << r
	}
	return s
}

// Has reports whether r is in the set.
func (s ResourceSet) Has(r Resource) bool {
	return s&(1<<r) != 0
}

// Empty reports whether the set holds no category.
func (s ResourceSet) Empty() bool {
	return s == 0
}

// Directions are the four orthogonal steps in fixed order: up, down, left, right.
var Directions = [4]Coord{
	{X: 0, Y: -1},
	{X: 0, Y: 1},
	{X: -1, Y: 0},
	{X: 1, Y: 0},
}

// Neighbors returns the four orthogonal neighbours of c (not bounds-checked).
func (c Coord) Neighbors() [4]Coord {
	var result [4]Coord
	for i, d := range Directions {
		result[i] = c.Add(d)
	}
	return result
}

// Manhattan returns the taxicab distance between two coordinates.
func Manhattan(a, b Coord) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

// Chebyshev returns the king-move distance between two coordinates.
func Chebyshev(a, b Coord) int {
	dx, dy := abs(a.X-b.X), abs(a.Y-b.Y)
	if dx > dy {
		return dx
	}
	return dy
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// CellName returns a human-readable name for a cell category.
func CellName(c Cell) string {
	switch c {
	case CellEmpty:
		return "Empty"
	case CellObstacle:
		return "Obstacle"
	case CellEnergy:
		return "Energy"
	case CellMineral:
		return "Mineral"
	case CellScience:
		return "Science"
	default:
		return "Unknown"
	}
}

// ResourceName returns a human-readable name for a resource category.
func ResourceName(r Resource) string {
	return CellName(r.Cell())
}

// ParseResource maps a lower-case name back to a category.
func ParseResource(name string) (Resource, bool) {
	switch name {
	case "energy":
		return ResourceEnergy, true
	case "mineral":
		return ResourceMineral, true
	case "science":
		return ResourceScience, true
	default:
		return 0, false
	}
}

// Symbol returns the one-character map glyph for a cell.
func (c Cell) Symbol() byte {
	switch c {
	case CellObstacle:
		return '#'
	case CellEnergy:
		return '+'
	case CellMineral:
		return '*'
	case CellScience:
		return '?'
	default:
		return '.'
	}
}
