package table

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/penwyp/go-photometry-sync/internal/core/model"
)

// Fiber table columns.
const (
	ColFiber    = "Fiber"
	ColRegion   = "Region"
	ColAP       = "AP"
	ColML       = "ML"
	ColDV       = "DV"
	ColIncluded = "Included"
)

// ParseFiberLocations converts fiber table rows in table order.
func ParseFiberLocations(rows []Row) ([]model.FiberLocation, error) {
	if err := requireColumns(rows, ColFiber, ColRegion, ColAP, ColML, ColDV, ColIncluded); err != nil {
		return nil, err
	}

	fibers := make([]model.FiberLocation, 0, len(rows))
	for i, row := range rows {
		line := i + 2
		fiber, err := strconv.Atoi(row.Get(ColFiber))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid fiber number %q", line, row.Get(ColFiber))
		}
		loc := model.FiberLocation{Fiber: fiber, Region: row.Get(ColRegion)}
		for _, c := range []struct {
			col string
			dst *float64
		}{{ColAP, &loc.AP}, {ColML, &loc.ML}, {ColDV, &loc.DV}} {
			if *c.dst, err = strconv.ParseFloat(row.Get(c.col), 64); err != nil {
				return nil, fmt.Errorf("line %d: invalid %s coordinate %q", line, c.col, row.Get(c.col))
			}
		}
		if loc.Included, err = parseBool(row.Get(ColIncluded)); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		fibers = append(fibers, loc)
	}
	return fibers, nil
}

// AcceptedFibers returns the positions of included fibers in table order.
func AcceptedFibers(fibers []model.FiberLocation) []int {
	var accepted []int
	for i, f := range fibers {
		if f.Included {
			accepted = append(accepted, i)
		}
	}
	return accepted
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "y", "x":
		return true, nil
	case "0", "false", "no", "n", "":
		return false, nil
	default:
		return false, fmt.Errorf("invalid included flag %q", value)
	}
}
