// Package parse extracts a structured order from the fixed-layout summary
// block the conversational assistant is instructed to emit.
//
// The layout is generated text, not machine-enforced output, so parsing
// degrades gracefully: a line that fails to match or carries an unreadable
// number is dropped on its own, never failing the whole block. Extras and
// exclusions carry no explicit reference to their dish; they attach to the
// most recently seen dish line by document order.
package parse

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/camperolabs/ordering/order"
)

// SummaryMarker is the literal string whose presence signals that a reply
// encodes a finalized order. Callers check it before invoking Message.
const SummaryMarker = "Resumen del Pedido:"

// ContainsSummary reports whether text carries an order-summary section.
func ContainsSummary(text string) bool {
	return strings.Contains(text, SummaryMarker)
}

type lineKind int

const (
	lineOther lineKind = iota
	lineTable
	lineDish
	lineDrink
	lineExtra
	lineExclusion
	lineTotal
)

// Line patterns for the assistant's summary layout. The assistant is told
// to keep this format verbatim, accents included, but "Numero" shows up
// both with and without the accent in practice.
var (
	tableRe     = regexp.MustCompile(`^\s*- \*N(?:ú|u)mero de Mesa\*:\s*(\d+)`)
	dishRe      = regexp.MustCompile(`^\s*- \*Plato \d+\*:\s*(.+?)\s*-\s*([\d.]+)€(?:\s*x(\d+))?\s*$`)
	drinkRe     = regexp.MustCompile(`^\s*- \*Bebida(?: \d+)?\*:\s*(.+?)\s*-\s*([\d.]+)€(?:\s*x(\d+))?\s*$`)
	extraRe     = regexp.MustCompile(`^\s*--> \*Extra\*:\s*\*?(.+?)\*?\s*-\s*([\d.]+)€(?:\s*x(\d+))?\s*$`)
	exclusionRe = regexp.MustCompile(`^\s*--> \*Sin\*:\s*(.+?)\s*$`)
	totalRe     = regexp.MustCompile(`^\s*- \*Total\*:\s*([\d.]+)€`)
)

// classify tags one line of the block and returns its capture groups.
func classify(line string) (lineKind, []string) {
	if m := dishRe.FindStringSubmatch(line); m != nil {
		return lineDish, m
	}
	if m := drinkRe.FindStringSubmatch(line); m != nil {
		return lineDrink, m
	}
	if m := extraRe.FindStringSubmatch(line); m != nil {
		return lineExtra, m
	}
	if m := exclusionRe.FindStringSubmatch(line); m != nil {
		return lineExclusion, m
	}
	if m := totalRe.FindStringSubmatch(line); m != nil {
		return lineTotal, m
	}
	if m := tableRe.FindStringSubmatch(line); m != nil {
		return lineTable, m
	}
	return lineOther, nil
}

// Message scans an assistant reply and returns the order it describes.
//
// It never fails: missing sections degrade to their zero values (nil
// table number, empty extras, zero total) and malformed lines are skipped
// individually. The returned Total is whatever the text claimed, or the
// zero value when no total line was present; order.Build recomputes it
// either way.
func Message(text string) *order.Order {
	o := &order.Order{
		Dishes: []order.Line{},
		Drinks: []order.Line{},
	}

	// current accumulates the dish that continuation lines attach to; it
	// is flushed into the order when the next dish, a drink, or the end
	// of input is reached.
	var current *order.Line
	flush := func() {
		if current != nil {
			o.Dishes = append(o.Dishes, *current)
			current = nil
		}
	}

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		kind, m := classify(sc.Text())
		switch kind {
		case lineTable:
			if o.TableNumber == nil {
				if n, err := strconv.Atoi(m[1]); err == nil {
					o.TableNumber = &n
				}
			}

		case lineDish:
			flush()
			l, ok := parseLine(m)
			if !ok {
				continue
			}
			current = &l

		case lineDrink:
			flush()
			l, ok := parseLine(m)
			if !ok {
				continue
			}
			o.Drinks = append(o.Drinks, l)

		case lineExtra:
			if current == nil {
				continue // dangling extra, no dish to attach to
			}
			price, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				continue
			}
			current.Extras = append(current.Extras, order.Extra{
				Name:      strings.TrimSpace(m[1]),
				UnitPrice: price,
				Quantity:  parseQuantity(m[3]),
			})

		case lineExclusion:
			if current == nil {
				continue
			}
			current.Exclusions = append(current.Exclusions, order.Exclusion{
				Name: strings.TrimSpace(m[1]),
			})

		case lineTotal:
			if t, err := strconv.ParseFloat(m[1], 64); err == nil {
				o.Total = t
			}
		}
	}
	flush()

	return o
}

// parseLine builds an order line from dish/drink capture groups. A price
// that does not parse drops the line.
func parseLine(m []string) (order.Line, bool) {
	price, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return order.Line{}, false
	}
	return order.Line{
		Name:      strings.TrimSpace(m[1]),
		UnitPrice: price,
		Quantity:  parseQuantity(m[3]),
	}, true
}

// parseQuantity reads an optional xN multiplier, defaulting to 1.
func parseQuantity(s string) int {
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
