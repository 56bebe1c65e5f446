package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSizeBucketBoundaries(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{-1, "<1 KB"},
		{0, "<1 KB"},
		{1023, "<1 KB"},
		{1024, "1-4 KB"},
		{4*1024 - 1, "1-4 KB"},
		{4 * 1024, "4-16 KB"},
		{16*1024 - 1, "4-16 KB"},
		{16 * 1024, "16-64 KB"},
		{64*1024 - 1, "16-64 KB"},
		{64 * 1024, "64-256 KB"},
		{256*1024 - 1, "64-256 KB"},
		{256 * 1024, "256 KB - 1 MB"},
		{1024*1024 - 1, "256 KB - 1 MB"},
		{1024 * 1024, ">1 MB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SizeBucket(tt.size))
	}
}

func TestSizeBucketMemoizationStable(t *testing.T) {
	first := SizeBucket(5000)
	second := SizeBucket(5000)
	assert.Equal(t, first, second)
}
