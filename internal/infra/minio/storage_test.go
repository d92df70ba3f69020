package minio

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultKeyOrderMatchesCollectionOrder(t *testing.T) {
	names := []string{"zebra.png", "apple.jpg", "video0-frame-2.png", "video0-frame-10.png"}
	keys := make([]string, 0, len(names)+10)
	for i := 0; i < 12; i++ {
		keys = append(keys, ResultKey("cycle-1", i, names[i%len(names)]))
	}

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	assert.Equal(t, keys, sorted)
}

func TestResultKeyStripsDirectories(t *testing.T) {
	assert.Equal(t, "c/00000003-frame.png", ResultKey("c", 3, "nested/dir/frame.png"))
}

func TestResultKeyOrderPastFourDigits(t *testing.T) {
	positions := []int{0, 999, 1000, 9999, 10000, 123456}
	keys := make([]string, len(positions))
	for n, i := range positions {
		keys[n] = ResultKey("cycle-1", i, "frame.png")
	}

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	assert.Equal(t, keys, sorted)
}
