package entity

import (
	"fmt"
	"io"
)

// ArchiveEntry is one named payload of a decoded archive. The payload is read
// lazily through Open; each entry can be read independently of the others.
type ArchiveEntry struct {
	Name  string
	IsDir bool

	open func() (io.ReadCloser, error)
}

func NewArchiveEntry(name string, isDir bool, open func() (io.ReadCloser, error)) ArchiveEntry {
	return ArchiveEntry{Name: name, IsDir: isDir, open: open}
}

// Open returns a reader over the entry payload.
func (e ArchiveEntry) Open() (io.ReadCloser, error) {
	if e.open == nil {
		return nil, &EntryDecodeError{Entry: e.Name, Err: fmt.Errorf("entry has no payload")}
	}
	return e.open()
}

// ReadAll decodes the whole payload. Any failure is reported as an
// *EntryDecodeError scoped to this entry.
func (e ArchiveEntry) ReadAll() ([]byte, error) {
	rc, err := e.Open()
	if err != nil {
		return nil, asEntryError(e.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, asEntryError(e.Name, err)
	}
	return data, nil
}

func asEntryError(name string, err error) error {
	if ee, ok := err.(*EntryDecodeError); ok {
		return ee
	}
	return &EntryDecodeError{Entry: name, Err: err}
}
