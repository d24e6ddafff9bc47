package upload

import (
	"io"
	"os"
	"path/filepath"
)

// LocalFS implements FileReader and FileExpander against the local
// filesystem: chunked reads of the file being uploaded, and recursive
// directory expansion for the direct QueueUpload path.
type LocalFS struct{}

func (LocalFS) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (LocalFS) ReadChunk(path string, chunkIndex int, chunkSize int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := f.Seek(int64(chunkIndex)*chunkSize, io.SeekStart); err != nil {
		return nil, err
	}
	buf := make([]byte, chunkSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

// Expand returns path itself if it names a regular file, or every
// regular file beneath it if it names a directory and recursive is
// set; a non-recursive directory expands to nothing.
func (LocalFS) Expand(path string, recursive bool) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	if !recursive {
		return nil, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
