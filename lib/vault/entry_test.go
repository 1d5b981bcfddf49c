// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"testing"
)

func TestCompareVersionWins(t *testing.T) {
	older := &Entry{Version: 3, Content: "ff"}
	newer := &Entry{Version: 4, Content: "00"}
	if Compare(newer, older) <= 0 {
		t.Errorf("Compare(newer, older) = %d, want > 0", Compare(newer, older))
	}
	if Compare(older, newer) >= 0 {
		t.Errorf("Compare(older, newer) = %d, want < 0", Compare(older, newer))
	}
}

func TestCompareTieBreakIsSymmetric(t *testing.T) {
	cases := []struct {
		name string
		a, b Entry
	}{
		{"content", Entry{Version: 2, Content: "bb"}, Entry{Version: 2, Content: "aa"}},
		{"tombstone", Entry{Version: 2, Deleted: true}, Entry{Version: 2}},
		{"kind", Entry{Version: 2, Kind: KindDirectory}, Entry{Version: 2, Kind: KindFile}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compare(&tc.a, &tc.b); got <= 0 {
				t.Errorf("Compare(a, b) = %d, want > 0", got)
			}
			if got := Compare(&tc.b, &tc.a); got >= 0 {
				t.Errorf("Compare(b, a) = %d, want < 0", got)
			}
		})
	}
}

func TestCompareIdentical(t *testing.T) {
	a := &Entry{Version: 7, Content: "abc", Size: 3}
	b := &Entry{Version: 7, Content: "abc", Size: 3}
	if got := Compare(a, b); got != 0 {
		t.Errorf("Compare = %d, want 0", got)
	}
}

func TestEntryName(t *testing.T) {
	root := Entry{Vault: "alpha"}
	if root.Name() != "alpha" {
		t.Errorf("root Name() = %q, want alpha", root.Name())
	}
	nested := Entry{Vault: "alpha", Path: "docs/notes.txt"}
	if nested.Name() != "notes.txt" {
		t.Errorf("Name() = %q, want notes.txt", nested.Name())
	}
}
