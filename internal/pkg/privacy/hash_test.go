package privacy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashTextDeterministic(t *testing.T) {
	first := HashText("meet at noon")
	second := HashText("meet at noon")
	require.Equal(t, first, second)
}

func TestHashTextDistinctAndFixedLength(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		digest := HashText(fmt.Sprintf("message-%d", i))
		require.Len(t, digest, 64)
		_, dup := seen[digest]
		require.False(t, dup, "collision at %d", i)
		seen[digest] = struct{}{}
	}
}
