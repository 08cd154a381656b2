// Package spatial maps coordinates onto H3 cells.
package spatial

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/uber/h3-go/v4"
)

// DefaultResolution is the system-wide resolution used for patient profiles.
// Changing it requires re-deriving every stored patient cell.
const DefaultResolution = 7

const maxRing = 10

var (
	ErrInvalidCoordinate = errors.New("coordinate out of range")
	ErrInvalidResolution = errors.New("resolution out of range")
	ErrInvalidCell       = errors.New("invalid cell identifier")
	ErrInvalidRing       = errors.New("ring size out of range")
)

// ToCell returns the hex cell identifier containing (lat, lon).
func ToCell(lat, lon float64, resolution int) (string, error) {
	if !finite(lat) || !finite(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinate, lat, lon)
	}
	if resolution < 0 || resolution > 15 {
		return "", fmt.Errorf("%w: %d", ErrInvalidResolution, resolution)
	}

	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lon), resolution)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCoordinate, err)
	}
	return cell.String(), nil
}

// Neighbors returns the cells within ring steps of cell, including cell
// itself, sorted for stable output.
func Neighbors(cellID string, ring int) ([]string, error) {
	if ring < 0 || ring > maxRing {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRing, ring)
	}
	cell, err := ParseCell(cellID)
	if err != nil {
		return nil, err
	}

	disk, err := h3.GridDisk(cell, ring)
	if err != nil {
		return nil, fmt.Errorf("grid disk for %s: %w", cellID, err)
	}

	out := make([]string, 0, len(disk))
	for _, c := range disk {
		out = append(out, c.String())
	}
	sort.Strings(out)
	return out, nil
}

// ParseCell validates a hex cell identifier.
func ParseCell(cellID string) (h3.Cell, error) {
	v, err := strconv.ParseUint(cellID, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCell, cellID)
	}
	cell := h3.Cell(int64(v))
	if !cell.IsValid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCell, cellID)
	}
	return cell, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Indexer binds the system resolution so callers cannot drift from it.
type Indexer struct {
	resolution int
}

func NewIndexer(resolution int) (*Indexer, error) {
	if resolution < 0 || resolution > 15 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidResolution, resolution)
	}
	return &Indexer{resolution: resolution}, nil
}

func (i *Indexer) Resolution() int {
	return i.resolution
}

func (i *Indexer) ToCell(lat, lon float64) (string, error) {
	return ToCell(lat, lon, i.resolution)
}

func (i *Indexer) Neighbors(cellID string, ring int) ([]string, error) {
	return Neighbors(cellID, ring)
}
