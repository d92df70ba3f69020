package usecase

import (
	"errors"
	"math"
	"regexp"
	"strconv"

	"github.com/fiapx/fiapx-frame-ingest/internal/domain/entity"
)

var frameNamePattern = regexp.MustCompile(`(\d+)-frame-(\d+)\.png$`)

// ParseFrameName recovers the source video index and frame number from an
// archive entry named "<prefix><sourceIndex>-frame-<frameNumber>.png".
// Names that do not follow the convention yield entity.Unordered for both.
// A digit group too large for an int is clamped to math.MaxInt, so such
// entries still sort after every representable index.
func ParseFrameName(name string) (sourceIndex, frameNumber int, ok bool) {
	m := frameNamePattern.FindStringSubmatch(name)
	if m == nil {
		return entity.Unordered, entity.Unordered, false
	}
	return parseDigits(m[1]), parseDigits(m[2]), true
}

func parseDigits(s string) int {
	n, err := strconv.Atoi(s)
	if errors.Is(err, strconv.ErrRange) {
		return math.MaxInt
	}
	return n
}
