package util

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FileInfo identifies one version of a file.
type FileInfo struct {
	ModTime int64  // Last modification time, unix seconds
	Size    int64  // File size in bytes
	Inode   uint64 // Inode number
}

// Changed reports whether other describes a different version of the file.
func (f FileInfo) Changed(other FileInfo) bool {
	return f != other
}

// GetFileInfo stats filepath, including its inode number.
// Supported on Linux and macOS.
func GetFileInfo(filepath string) (*FileInfo, error) {
	var st unix.Stat_t
	if err := unix.Stat(filepath, &st); err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", filepath, err)
	}

	return &FileInfo{
		ModTime: int64(st.Mtim.Sec),
		Size:    st.Size,
		Inode:   uint64(st.Ino),
	}, nil
}
