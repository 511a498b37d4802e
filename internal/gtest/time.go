package gtest

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// TimeFactor multiplies every timeout produced by [ScaleMs].
// It is read from GSANITY_TEST_TIME_FACTOR at init,
// so a contended CI machine can run with e.g. GSANITY_TEST_TIME_FACTOR=3
// without changing any test.
var TimeFactor ScaledDuration = 1

func init() {
	f := os.Getenv("GSANITY_TEST_TIME_FACTOR")
	if f == "" {
		return
	}

	n, err := strconv.Atoi(f)
	if err != nil {
		panic(fmt.Errorf("failed to parse GSANITY_TEST_TIME_FACTOR (%q): %w", f, err))
	}
	if n <= 0 {
		panic(fmt.Errorf("GSANITY_TEST_TIME_FACTOR must be positive; got %d", n))
	}

	TimeFactor = ScaledDuration(n)
}

// ScaledDuration is a test timeout that has been multiplied by [TimeFactor].
type ScaledDuration time.Duration

// ScaleMs returns ms milliseconds multiplied by [TimeFactor].
func ScaleMs(ms int64) ScaledDuration {
	return TimeFactor * ScaledDuration(ms) * ScaledDuration(time.Millisecond)
}
