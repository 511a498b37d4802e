package gtest

import (
	"time"
)

// TestingFatalHelper is the subset of [testing.TB] used by the channel helpers,
// small enough that the helpers can themselves be tested with a fake.
type TestingFatalHelper interface {
	Helper()

	Fatalf(format string, args ...any)
}

const slowMachineHint = "if this is flaky on only one machine, set GSANITY_TEST_TIME_FACTOR to a value greater than %d"

// ReceiveSoon receives a value from ch,
// calling tb.Fatalf if nothing arrives within a short default timeout.
func ReceiveSoon[T any](tb TestingFatalHelper, ch <-chan T) T {
	tb.Helper()
	return ReceiveOrTimeout(tb, ch, ScaleMs(100))
}

// ReceiveOrTimeout receives a value from ch,
// calling tb.Fatalf if nothing arrives within timeout.
// Prefer [ReceiveSoon] unless the test has an unusual latency requirement.
func ReceiveOrTimeout[T any](tb TestingFatalHelper, ch <-chan T, timeout ScaledDuration) T {
	tb.Helper()

	if ch == nil {
		tb.Fatalf("receive from nil channel %T would block forever", ch)
		panic("unreachable")
	}

	timer := time.NewTimer(time.Duration(timeout))
	defer timer.Stop()

	select {
	case x := <-ch:
		return x
	case <-timer.C:
		tb.Fatalf("timed out receiving from %T; "+slowMachineHint, ch, TimeFactor)

		// A real t.Fatalf stops the goroutine.
		// Fakes used in tests do not, so panic to avoid returning a zero value.
		panic("unreachable")
	}
}

// SendSoon sends x on ch,
// calling tb.Fatalf if the send does not complete within a short default timeout.
func SendSoon[T any](tb TestingFatalHelper, ch chan<- T, x T) {
	tb.Helper()
	SendOrTimeout(tb, ch, x, ScaleMs(100))
}

// SendOrTimeout sends x on ch,
// calling tb.Fatalf if the send does not complete within timeout.
// Prefer [SendSoon] unless the test has an unusual latency requirement.
func SendOrTimeout[T any](tb TestingFatalHelper, ch chan<- T, x T, timeout ScaledDuration) {
	tb.Helper()

	if ch == nil {
		tb.Fatalf("send to nil channel %T would block forever", ch)
		panic("unreachable")
	}

	timer := time.NewTimer(time.Duration(timeout))
	defer timer.Stop()

	select {
	case ch <- x:
	case <-timer.C:
		tb.Fatalf("timed out sending to %T; "+slowMachineHint, ch, TimeFactor)
		panic("unreachable")
	}
}

// IsSending receives a value that must already be available on ch.
func IsSending[T any](tb TestingFatalHelper, ch <-chan T) T {
	tb.Helper()

	if ch == nil {
		tb.Fatalf("nil channel %T never sends", ch)
		panic("unreachable")
	}

	select {
	case x := <-ch:
		return x
	default:
		tb.Fatalf("expected a value ready on %T, but none was", ch)
		panic("unreachable")
	}
}

// NotSending fails the test if a value is immediately available on ch.
func NotSending[T any](tb TestingFatalHelper, ch <-chan T) {
	tb.Helper()

	if ch == nil {
		tb.Fatalf("checking nil channel %T is meaningless", ch)
		panic("unreachable")
	}

	select {
	case x := <-ch:
		tb.Fatalf("unexpected value on %T: %v", ch, x)
	default:
	}
}

// NotSendingSoon fails the test if a value arrives on ch within a short timeout.
// It always blocks for the whole timeout,
// so prefer [NotSending] when another synchronization point is available.
func NotSendingSoon[T any](tb TestingFatalHelper, ch <-chan T) {
	tb.Helper()

	if ch == nil {
		tb.Fatalf("checking nil channel %T is meaningless", ch)
		panic("unreachable")
	}

	timer := time.NewTimer(time.Duration(ScaleMs(75)))
	defer timer.Stop()

	select {
	case <-timer.C:
	case x := <-ch:
		tb.Fatalf("unexpected value on %T: %v", ch, x)
	}
}
