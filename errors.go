/*
Copyright 2023 Alexander Bartolomey (github@alexanderbartolomey.de)

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package netflow

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigInvalid indicates a field dictionary file is missing, malformed,
	// or names a merge target that does not exist. Fatal at construction.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrUnknownField indicates a template field references an
	// (enterprise id, field type) pair absent from the field dictionary. The
	// enclosing template is rejected entirely.
	ErrUnknownField = errors.New("unknown field in template")

	// ErrUnresolvableTemplate indicates a caller-supplied validator rejected a
	// candidate template after it otherwise resolved successfully.
	ErrUnresolvableTemplate = errors.New("template rejected by validator")

	// ErrMissingTemplate indicates a data flowset referenced a template id not
	// currently present (or expired) in the registry.
	ErrMissingTemplate = errors.New("template not found")

	// ErrLengthMismatch indicates a data flowset's byte length is incompatible
	// with its template's fixed width.
	ErrLengthMismatch = errors.New("record length mismatch")

	// ErrTruncatedPDU indicates a datagram ended before a header or flowset
	// could be fully read.
	ErrTruncatedPDU = errors.New("truncated datagram")

	// ErrMalformedHeader indicates a header field carries a value that cannot
	// be legal in practice (e.g. a negative body length).
	ErrMalformedHeader = errors.New("malformed header")

	// ErrUnsupportedVersion indicates the 16-bit version field named a
	// version this decoder does not implement, or one excluded by Options.Versions.
	ErrUnsupportedVersion = errors.New("unsupported protocol version")

	// ErrCacheNotWritable indicates persist() could not write the template
	// cache file. Non-fatal: the in-memory registry continues functioning.
	ErrCacheNotWritable = errors.New("template cache not writable")

	// ErrCacheLoadFailure indicates the persisted template cache file could
	// not be read or parsed at startup. Non-fatal: the registry starts empty.
	ErrCacheLoadFailure = errors.New("template cache load failure")
)

func unknownField(enterpriseID uint32, fieldType uint16, length uint16) error {
	return fmt.Errorf("%w: enterprise=%d type=%d length=%d", ErrUnknownField, enterpriseID, fieldType, length)
}

func missingTemplate(key TemplateKey) error {
	return fmt.Errorf("%w: %s", ErrMissingTemplate, key.String())
}

func lengthMismatch(want, got int) error {
	return fmt.Errorf("%w: fixed width %d does not divide available %d bytes", ErrLengthMismatch, want, got)
}
