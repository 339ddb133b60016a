// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package s9pk

import (
	"errors"
	"fmt"
)

// CorruptArchiveError reports an archive whose structure is invalid:
// bad magic, a table of contents entry outside the stream, overlapping
// or missing sections, or a manifest that does not validate.
type CorruptArchiveError struct {
	// Section is the section at fault, or "header".
	Section string
	Reason  string

	// Err is the underlying error, if any.
	Err error
}

func (e *CorruptArchiveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt archive: %s: %s: %v", e.Section, e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt archive: %s: %s", e.Section, e.Reason)
}

func (e *CorruptArchiveError) Unwrap() error { return e.Err }

// IsCorruptArchive reports whether err is (or wraps) a
// *CorruptArchiveError.
func IsCorruptArchive(err error) bool {
	var target *CorruptArchiveError
	return errors.As(err, &target)
}

// SerializationError reports a section that could not be encoded while
// packing.
type SerializationError struct {
	Section Section
	Err     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serializing %s: %v", e.Section, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// DeserializationError reports a section whose bytes could not be
// decoded.
type DeserializationError struct {
	Section Section
	Err     error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserializing %s: %v", e.Section, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// IsDeserialization reports whether err is (or wraps) a
// *DeserializationError.
func IsDeserialization(err error) bool {
	var target *DeserializationError
	return errors.As(err, &target)
}
