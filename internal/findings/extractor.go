// Package findings turns the free-text answer of a vision model into positioned findings and
// classifies them into the four clinical report sections.
//
// Both steps are pure: they hold no state between calls and never fail. Lines that match no
// pattern degrade to sentinel values, and lines that fit no section are dropped.
package findings

import (
	"iter"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/eeg-findings-server/internal/domain"
)

var (
	coordinateTag = regexp.MustCompile(`\[x:\s*(\d+)\s*,?\s*y:\s*(\d+)\]`)
	locationGroup = regexp.MustCompile(`\((.*?)\)`)
	ordinalPrefix = regexp.MustCompile(`^\d+\.\s*`)
	bracketedTag  = regexp.MustCompile(`\[.*?\]`)
)

// Extract yields one Finding per non-blank line of text, in line order. Blank lines do not
// consume an id. The sequence can be ranged over any number of times.
func Extract(text string) iter.Seq[domain.Finding] {
	return func(yield func(domain.Finding) bool) {
		id := 0
		for line := range strings.SplitSeq(text, "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			id++
			if !yield(ParseLine(id, line)) {
				return
			}
		}
	}
}

// ExtractAll collects Extract into a slice. It never returns nil.
func ExtractAll(text string) []domain.Finding {
	out := []domain.Finding{}
	for f := range Extract(text) {
		out = append(out, f)
	}
	return out
}

// ParseLine parses a single response line.
func ParseLine(id int, line string) domain.Finding {
	line = strings.TrimSpace(line)
	return domain.Finding{
		ID:          id,
		Description: parseDescription(line),
		Location:    parseLocation(line),
		Coordinates: parseCoordinates(line),
	}
}

func parseCoordinates(line string) domain.Coordinates {
	def := domain.Coordinates{X: domain.DefaultCoordinateX, Y: domain.DefaultCoordinateY}
	m := coordinateTag.FindStringSubmatch(line)
	if m == nil {
		return def
	}
	return domain.Coordinates{X: coordinate(m[1]), Y: coordinate(m[2])}
}

// coordinate converts one matched digit run. Values beyond int saturate at math.MaxInt.
func coordinate(digits string) int {
	v, err := strconv.Atoi(digits)
	if err != nil {
		return math.MaxInt
	}
	return v
}

func parseLocation(line string) string {
	m := locationGroup.FindStringSubmatch(line)
	if m == nil {
		return domain.LocationUnspecified
	}
	return strings.TrimSpace(m[1])
}

func parseDescription(line string) string {
	desc := ordinalPrefix.ReplaceAllString(line, "")
	if i := strings.IndexByte(desc, '('); i >= 0 {
		desc = desc[:i]
	}
	desc = bracketedTag.ReplaceAllString(desc, "")
	return strings.TrimSpace(desc)
}
