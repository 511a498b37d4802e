package gticktest_test

import (
	"math"
	"testing"

	"github.com/gordian-engine/gsanity/gtick"
	"github.com/gordian-engine/gsanity/gtick/gticktest"
	"github.com/stretchr/testify/require"
)

func TestManualClock(t *testing.T) {
	t.Parallel()

	c := gticktest.NewManualClock(math.MaxUint32 - 1)
	require.Equal(t, gtick.Ticks(math.MaxUint32-1), c.Now())

	require.Equal(t, gtick.Ticks(1), c.Advance(3))
	require.Equal(t, gtick.Ticks(1), c.Now())

	c.Set(40)
	require.Equal(t, gtick.Ticks(40), c.Now())
}
