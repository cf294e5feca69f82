package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLikePatternEscapesWildcards(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{OrderPrefix, `orders:%`},
		{PairPrefix, `p2p\_matched\_%`},
		{StatsPrefix, `p2p\_merchant\_stats\_%`},
		{`50%`, `50\%%`},
		{`a\b`, `a\\b%`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, likePattern(tt.prefix))
	}
}
