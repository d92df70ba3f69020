package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
)

// FileEntry maps a file on disk to its name inside the archive.
type FileEntry struct {
	Name string
	Path string
}

type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// Write streams a zip archive of files to dst, in the given order.
func (w *Writer) Write(ctx context.Context, dst io.Writer, files []FileEntry) error {
	zw := zip.NewWriter(dst)

	for _, fe := range files {
		select {
		case <-ctx.Done():
			zw.Close()
			return ctx.Err()
		default:
		}

		if err := addFileToZip(zw, fe); err != nil {
			zw.Close()
			return fmt.Errorf("add %s to zip: %w", fe.Path, err)
		}
	}

	return zw.Close()
}

func addFileToZip(zw *zip.Writer, fe FileEntry) error {
	file, err := os.Open(fe.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}

	header.Name = fe.Name
	header.Method = zip.Deflate

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(writer, file)
	return err
}
