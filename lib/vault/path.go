// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"fmt"
	"strings"
)

// MaxNameLength is the longest allowed path component, in bytes.
const MaxNameLength = 255

// Clean normalizes an intra-vault path: no leading or trailing slash,
// no "." or ".." components. The vault root is "". Paths that escape
// the root are rejected.
func Clean(p string) (string, error) {
	components := make([]string, 0, strings.Count(p, "/")+1)
	for _, component := range strings.Split(p, "/") {
		switch component {
		case "", ".":
			continue
		case "..":
			return "", fmt.Errorf("%q: %w", p, ErrInvalidPath)
		}
		if len(component) > MaxNameLength {
			return "", fmt.Errorf("%q: %w", component, ErrNameTooLong)
		}
		components = append(components, component)
	}
	return strings.Join(components, "/"), nil
}

// Split separates a mount path ("/alpha/docs/a.txt") into a vault
// name ("alpha") and an intra-vault path ("docs/a.txt"). The mount
// root yields an empty vault name.
func Split(mountPath string) (vaultName, rest string, err error) {
	trimmed := strings.Trim(mountPath, "/")
	if trimmed == "" {
		return "", "", nil
	}
	vaultName, rest, _ = strings.Cut(trimmed, "/")
	if vaultName == "." || vaultName == ".." {
		return "", "", fmt.Errorf("%q: %w", mountPath, ErrInvalidPath)
	}
	rest, err = Clean(rest)
	if err != nil {
		return "", "", err
	}
	return vaultName, rest, nil
}

// Join builds a mount path from a vault name and intra-vault path.
func Join(vaultName, p string) string {
	if p == "" {
		return "/" + vaultName
	}
	return "/" + vaultName + "/" + p
}

// Parent returns the parent of an intra-vault path. The parent of a
// top-level entry is the root, "".
func Parent(p string) string {
	index := strings.LastIndexByte(p, '/')
	if index < 0 {
		return ""
	}
	return p[:index]
}

// Base returns the last component of an intra-vault path.
func Base(p string) string {
	return p[strings.LastIndexByte(p, '/')+1:]
}

// Child joins a directory path and a name.
func Child(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// IsWithin reports whether p is dir itself or lies beneath it.
func IsWithin(p, dir string) bool {
	if dir == "" {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+"/")
}
