// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import "errors"

// Sentinel errors. Components wrap them with context using
// fmt.Errorf("...: %w", err); callers test with errors.Is. Any error
// that matches none of these is an I/O failure.
var (
	ErrNotFound         = errors.New("no such file or directory")
	ErrPermissionDenied = errors.New("permission denied")
	ErrAlreadyExists    = errors.New("file exists")
	ErrIsDirectory      = errors.New("is a directory")
	ErrNotDirectory     = errors.New("not a directory")
	ErrNotEmpty         = errors.New("directory not empty")
	ErrNameTooLong      = errors.New("file name too long")
	ErrInvalidPath      = errors.New("invalid path")
	ErrFileTooLarge     = errors.New("file too large")

	// ErrConflict reports an optimistic concurrency collision: the
	// version a writer read was advanced before it committed.
	ErrConflict = errors.New("version conflict")

	// ErrUnreachable reports that a peer could not be contacted. It is
	// never surfaced to filesystem callers.
	ErrUnreachable = errors.New("peer unreachable")
)

// Code is a stable, transport-safe name for an error class.
type Code string

const (
	CodeNotFound         Code = "not_found"
	CodePermissionDenied Code = "permission_denied"
	CodeAlreadyExists    Code = "already_exists"
	CodeIsDirectory      Code = "is_directory"
	CodeNotDirectory     Code = "not_directory"
	CodeNotEmpty         Code = "not_empty"
	CodeNameTooLong      Code = "name_too_long"
	CodeInvalidPath      Code = "invalid_path"
	CodeFileTooLarge     Code = "file_too_large"
	CodeConflict         Code = "conflict"
	CodeUnreachable      Code = "unreachable"
	CodeIO               Code = "io"
)

var codeErrors = map[Code]error{
	CodeNotFound:         ErrNotFound,
	CodePermissionDenied: ErrPermissionDenied,
	CodeAlreadyExists:    ErrAlreadyExists,
	CodeIsDirectory:      ErrIsDirectory,
	CodeNotDirectory:     ErrNotDirectory,
	CodeNotEmpty:         ErrNotEmpty,
	CodeNameTooLong:      ErrNameTooLong,
	CodeInvalidPath:      ErrInvalidPath,
	CodeFileTooLarge:     ErrFileTooLarge,
	CodeConflict:         ErrConflict,
	CodeUnreachable:      ErrUnreachable,
}

// CodeOf classifies err. Unclassified errors are CodeIO.
func CodeOf(err error) Code {
	for code, sentinel := range codeErrors {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeIO
}

// ErrorFor returns the sentinel for code, or nil for CodeIO and
// unknown codes.
func ErrorFor(code Code) error {
	return codeErrors[code]
}
