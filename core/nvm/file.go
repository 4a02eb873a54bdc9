package nvm

import (
	"fmt"
	"io"
	"os"
)

// FileStore is a Store persisted to a file. The whole image is cached in
// memory; every write goes through to the file immediately, keeping the
// synchronous-write contract of the Store interface.
type FileStore struct {
	data []byte
	file *os.File
}

// OpenFile opens (or creates) a file-backed store. A new or short file is
// padded with the erased value so fresh nodes boot with an unassigned
// configuration.
func OpenFile(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening nvm file: %w", err)
	}

	data := make([]byte, Size)
	for i := range data {
		data[i] = Erased
	}
	if _, err := io.ReadFull(f, data); err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		f.Close()
		return nil, fmt.Errorf("reading nvm file: %w", err)
	}

	s := &FileStore{data: data, file: f}
	// Normalize the file to the full layout so later byte writes land
	// inside the image.
	if err := s.flushAll(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *FileStore) flushAll() error {
	if _, err := s.file.WriteAt(s.data, 0); err != nil {
		return fmt.Errorf("writing nvm file: %w", err)
	}
	return nil
}

// ReadByte returns the byte at off.
func (s *FileStore) ReadByte(off int) byte { return s.data[off] }

// WriteByte stores val at off and persists it.
func (s *FileStore) WriteByte(off int, val byte) {
	s.data[off] = val
	s.file.WriteAt(s.data[off:off+1], int64(off))
}

// ReadBlock fills dst from the store starting at off.
func (s *FileStore) ReadBlock(dst []byte, off int) { copy(dst, s.data[off:]) }

// WriteBlock stores src starting at off and persists it.
func (s *FileStore) WriteBlock(off int, src []byte) {
	n := copy(s.data[off:], src)
	s.file.WriteAt(s.data[off:off+n], int64(off))
}

// Close syncs and closes the backing file.
func (s *FileStore) Close() error {
	if err := s.file.Sync(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
