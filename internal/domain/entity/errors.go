package entity

import (
	"fmt"
)

// TransportError reports that the remote extraction service could not be
// reached or the exchange was cut short.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServiceError reports a non-success response from the remote service.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("extraction service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("extraction service returned status %d: %s", e.StatusCode, e.Message)
}

// ArchiveFormatError reports a response blob that is not a readable archive.
type ArchiveFormatError struct {
	Err error
}

func (e *ArchiveFormatError) Error() string {
	return fmt.Sprintf("invalid archive: %v", e.Err)
}

func (e *ArchiveFormatError) Unwrap() error { return e.Err }

// EntryDecodeError reports a single corrupt archive entry.
type EntryDecodeError struct {
	Entry string
	Err   error
}

func (e *EntryDecodeError) Error() string {
	return fmt.Sprintf("decode entry %q: %v", e.Entry, e.Err)
}

func (e *EntryDecodeError) Unwrap() error { return e.Err }
