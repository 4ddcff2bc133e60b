package dberr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodedErrorMatching(t *testing.T) {
	err := New(CodeBusy, "write lock held by connection %d", 7)
	if !errors.Is(err, Busy) {
		t.Fatal("errors.Is should match Busy by code")
	}
	if errors.Is(err, Corrupt) {
		t.Fatal("errors.Is must not match a different code")
	}
	if got := err.Error(); got != "Busy: write lock held by connection 7" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("checksum mismatch on page 12")
	err := Wrap(CodeCorrupt, cause, "reading table btree")
	if !errors.Is(err, Corrupt) {
		t.Fatal("wrapped error should match Corrupt")
	}
	if !errors.Is(err, cause) {
		t.Fatal("wrapped error should unwrap to its cause")
	}
	if Wrap(CodeCorrupt, nil, "no-op") != nil {
		t.Fatal("wrapping nil should stay nil")
	}
}

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{New(CodeParse, "unexpected token"), CodeParse},
		{fmt.Errorf("outer: %w", New(CodeWriteConflict, "row 3")), CodeWriteConflict},
		{errors.New("plain"), CodeInternal},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.want {
			t.Fatalf("CodeOf(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
