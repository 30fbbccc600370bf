// Grid generation using layered simplex noise.
// The same GenConfig always yields the same cells and bases.
package world

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds grid generation parameters.
type GenConfig struct {
	Width       int     // Cells per row
	Height      int     // Rows
	Seed        int64   // Noise seed, used as-is (0 is a valid seed)
	Scale       float64 // Noise periods across the grid
	Octaves     int     // Fractal layers
	BaseCount   int     // 1–4 bases, placed on corners
	ClearRadius int     // Cells around each base forced empty
}

// DefaultGenConfig returns the standard 25×25 map.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:       25,
		Height:      25,
		Seed:        42,
		Scale:       5.0,
		Octaves:     1,
		BaseCount:   1,
		ClearRadius: 1,
	}
}

// SmallTestConfig returns a tiny grid for rapid iteration.
func SmallTestConfig() GenConfig {
	cfg := DefaultGenConfig()
	cfg.Width = 10
	cfg.Height = 10
	return cfg
}

// Noise thresholds in [-1, 1], checked in ascending order.
const (
	obstacleBelow = -0.4
	energyBelow   = -0.1
	mineralBelow  = 0.2
	scienceBelow  = 0.6
)

// Generate creates a grid with terrain and bases.
func Generate(cfg GenConfig) *Grid {
	if cfg.Scale <= 0 {
		cfg.Scale = 5.0
	}
	if cfg.Octaves < 1 {
		cfg.Octaves = 1
	}

	g := NewGrid(cfg.Width, cfg.Height, BasePositions(cfg.Width, cfg.Height, cfg.BaseCount))
	noise := opensimplex.New(cfg.Seed)

	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			nx := float64(x) / float64(g.Width) * cfg.Scale
			ny := float64(y) / float64(g.Height) * cfg.Scale
			g.cells[g.index(Coord{X: x, Y: y})] = classify(octaveNoise(noise, nx, ny, cfg.Octaves, 1.0, 0.5))
		}
	}

	// Post-pass: keep every base reachable.
	for _, b := range g.bases {
		for y := b.Y - cfg.ClearRadius; y <= b.Y+cfg.ClearRadius; y++ {
			for x := b.X - cfg.ClearRadius; x <= b.X+cfg.ClearRadius; x++ {
				g.SetCell(Coord{X: x, Y: y}, CellEmpty)
			}
		}
	}

	return g
}

// BasePositions returns the corner bases in fixed order: top-left,
// bottom-right, top-right, bottom-left.
func BasePositions(width, height, count int) []Coord {
	corners := []Coord{
		{X: 0, Y: 0},
		{X: width - 1, Y: height - 1},
		{X: width - 1, Y: 0},
		{X: 0, Y: height - 1},
	}
	if count < 1 {
		count = 1
	}
	if count > len(corners) {
		count = len(corners)
	}
	var out []Coord
	for _, c := range corners[:count] {
		dup := false
		for _, o := range out {
			if o == c {
				dup = true
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

// classify buckets a noise sample into a cell category.
func classify(v float64) Cell {
	switch {
	case v < obstacleBelow:
		return CellObstacle
	case v < energyBelow:
		return CellEnergy
	case v < mineralBelow:
		return CellMineral
	case v < scienceBelow:
		return CellScience
	default:
		return CellEmpty
	}
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
