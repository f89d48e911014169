package assert

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func diff(exp, got interface{}) string {
	return cmp.Diff(exp, got, cmp.Exporter(func(r reflect.Type) bool {
		return true
	}))
}

// Equal asserts exp == got.
func Equal(t testing.TB, name string, exp, got interface{}) {
	t.Helper()

	if d := diff(exp, got); d != "" {
		t.Fatalf("unexpected %v (-want +got):\n%v", name, d)
	}
}

// Success asserts err == nil.
func Success(t testing.TB, err error) {
	t.Helper()

	if err != nil {
		t.Fatal(err)
	}
}

// Error asserts err != nil.
func Error(t testing.TB, err error) {
	t.Helper()

	if err == nil {
		t.Fatal("expected error")
	}
}

// Contains asserts the fmt.Sprint(v) contains sub.
func Contains(t testing.TB, v interface{}, sub string) {
	t.Helper()

	s := fmt.Sprint(v)
	if !strings.Contains(s, sub) {
		t.Fatalf("expected %q to contain %q", s, sub)
	}
}

// ErrorAs asserts errors.As(err, target).
func ErrorAs(t testing.TB, err error, target interface{}) {
	t.Helper()

	if !errors.As(err, target) {
		t.Fatalf("expected %v to be a %T", err, target)
	}
}
