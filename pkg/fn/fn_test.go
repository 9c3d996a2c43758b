package fn

import (
	"context"
	"errors"
	"testing"
)

func TestResult(t *testing.T) {
	ok := Ok(7)
	if !ok.IsOk() || ok.IsErr() {
		t.Fatal("Ok should be ok")
	}
	if v, err := ok.Unwrap(); v != 7 || err != nil {
		t.Fatalf("Unwrap = (%v, %v)", v, err)
	}

	boom := errors.New("boom")
	bad := Err[int](boom)
	if bad.IsOk() {
		t.Fatal("Err should not be ok")
	}
	if _, err := bad.Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("Unwrap err = %v", err)
	}
}

func TestFromPair(t *testing.T) {
	if r := FromPair(1, nil); r.IsErr() {
		t.Fatal("nil error should be ok")
	}
	if r := FromPair(1, errors.New("x")); r.IsOk() {
		t.Fatal("non-nil error should be err")
	}
}

func TestThen_ShortCircuits(t *testing.T) {
	first := func(_ context.Context, n int) Result[int] { return Err[int](errors.New("boom")) }
	called := false
	second := func(_ context.Context, n int) Result[string] {
		called = true
		return Ok("never")
	}
	r := Then(first, second)(context.Background(), 1)
	if r.IsOk() || called {
		t.Fatal("second stage must not run after failure")
	}
}

func TestThen_PassesValue(t *testing.T) {
	double := MapStage(func(n int) int { return n * 2 })
	str := MapStage(func(n int) int { return n + 1 })
	v, err := Then(double, str)(context.Background(), 5).Unwrap()
	if err != nil || v != 11 {
		t.Fatalf("got (%v, %v)", v, err)
	}
}

func TestTapStage(t *testing.T) {
	seen := 0
	tap := TapStage(func(_ context.Context, n int) { seen = n })
	v, err := tap(context.Background(), 3).Unwrap()
	if err != nil || v != 3 || seen != 3 {
		t.Fatalf("tap = (%v, %v), seen %d", v, err, seen)
	}
}

func TestTracedStage(t *testing.T) {
	stage := TracedStage("test.stage", MapStage(func(n int) int { return n + 1 }))
	if v, _ := stage(context.Background(), 1).Unwrap(); v != 2 {
		t.Fatalf("traced stage changed the value: %d", v)
	}

	failing := TracedStage("test.fail", func(context.Context, int) Result[int] {
		return Err[int](errors.New("boom"))
	})
	if r := failing(context.Background(), 1); r.IsOk() {
		t.Fatal("traced stage must pass errors through")
	}
}

func TestSliceHelpers(t *testing.T) {
	doubled := Map([]int{1, 2, 3}, func(n int) int { return n * 2 })
	if len(doubled) != 3 || doubled[2] != 6 {
		t.Fatalf("Map = %v", doubled)
	}
	odd := Filter([]int{1, 2, 3, 4}, func(n int) bool { return n%2 == 1 })
	if len(odd) != 2 || odd[1] != 3 {
		t.Fatalf("Filter = %v", odd)
	}
	sum := Reduce([]int{1, 2, 3}, 0, func(acc, n int) int { return acc + n })
	if sum != 6 {
		t.Fatalf("Reduce = %d", sum)
	}
}
