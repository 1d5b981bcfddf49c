// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"errors"
	"strings"
	"testing"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		input, vault, rest string
	}{
		{"/", "", ""},
		{"", "", ""},
		{"/alpha", "alpha", ""},
		{"/alpha/", "alpha", ""},
		{"/alpha/tsfile", "alpha", "tsfile"},
		{"/alpha/docs//a.txt", "alpha", "docs/a.txt"},
		{"/alpha/./docs/a.txt", "alpha", "docs/a.txt"},
	}
	for _, tc := range cases {
		vaultName, rest, err := Split(tc.input)
		if err != nil {
			t.Errorf("Split(%q): %v", tc.input, err)
			continue
		}
		if vaultName != tc.vault || rest != tc.rest {
			t.Errorf("Split(%q) = (%q, %q), want (%q, %q)", tc.input, vaultName, rest, tc.vault, tc.rest)
		}
	}
}

func TestSplitRejectsEscape(t *testing.T) {
	for _, input := range []string{"/..", "/alpha/../beta", "/alpha/docs/../../x"} {
		if _, _, err := Split(input); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Split(%q) error = %v, want ErrInvalidPath", input, err)
		}
	}
}

func TestCleanNameTooLong(t *testing.T) {
	long := strings.Repeat("x", MaxNameLength+1)
	if _, err := Clean("docs/" + long); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("Clean error = %v, want ErrNameTooLong", err)
	}
	if _, err := Clean(strings.Repeat("x", MaxNameLength)); err != nil {
		t.Errorf("Clean at limit: %v", err)
	}
}

func TestPathHelpers(t *testing.T) {
	if got := Parent("a/b/c"); got != "a/b" {
		t.Errorf("Parent = %q, want a/b", got)
	}
	if got := Parent("a"); got != "" {
		t.Errorf("Parent(top level) = %q, want root", got)
	}
	if got := Base("a/b/c"); got != "c" {
		t.Errorf("Base = %q, want c", got)
	}
	if got := Child("", "a"); got != "a" {
		t.Errorf("Child(root) = %q, want a", got)
	}
	if got := Child("a", "b"); got != "a/b" {
		t.Errorf("Child = %q, want a/b", got)
	}
	if got := Join("alpha", "a/b"); got != "/alpha/a/b" {
		t.Errorf("Join = %q", got)
	}
	if !IsWithin("a/b", "a") || IsWithin("ab", "a") || !IsWithin("a", "a") || !IsWithin("x", "") {
		t.Error("IsWithin gave an unexpected result")
	}
}
