package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/fiapx/fiapx-frame-ingest/internal/domain/entity"
)

var ErrEntryTooLarge = errors.New("entry exceeds size limit")

// Decoder reads zip archives returned by the extraction service. It holds no
// state across calls.
type Decoder struct {
	maxEntrySize int64
}

// NewDecoder returns a Decoder that rejects entries whose decoded payload
// exceeds maxEntrySize bytes. Zero disables the limit.
func NewDecoder(maxEntrySize int64) *Decoder {
	return &Decoder{maxEntrySize: maxEntrySize}
}

func (d *Decoder) Open(blob []byte) ([]entity.ArchiveEntry, error) {
	if len(blob) == 0 {
		return nil, &entity.ArchiveFormatError{Err: errors.New("empty archive")}
	}

	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	// Names are never used as filesystem paths, so insecure names are kept.
	if err != nil && !(errors.Is(err, zip.ErrInsecurePath) && zr != nil) {
		return nil, &entity.ArchiveFormatError{Err: err}
	}

	entries := make([]entity.ArchiveEntry, 0, len(zr.File))
	for _, f := range zr.File {
		f := f
		entries = append(entries, entity.NewArchiveEntry(f.Name, f.FileInfo().IsDir(), func() (io.ReadCloser, error) {
			return d.openFile(f)
		}))
	}
	return entries, nil
}

func (d *Decoder) openFile(f *zip.File) (io.ReadCloser, error) {
	if d.maxEntrySize > 0 && f.UncompressedSize64 > uint64(d.maxEntrySize) {
		return nil, &entity.EntryDecodeError{Entry: f.Name, Err: ErrEntryTooLarge}
	}

	rc, err := f.Open()
	if err != nil {
		return nil, &entity.EntryDecodeError{Entry: f.Name, Err: fmt.Errorf("open: %w", err)}
	}
	if d.maxEntrySize <= 0 {
		return rc, nil
	}
	return &cappedReader{ReadCloser: rc, limit: d.maxEntrySize}, nil
}

// cappedReader fails once more than limit bytes were produced, whatever the
// header declared.
type cappedReader struct {
	io.ReadCloser
	limit int64
	read  int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.read += int64(n)
	if c.read > c.limit {
		return n, ErrEntryTooLarge
	}
	return n, err
}
