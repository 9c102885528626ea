package util

import (
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"
)

// CalculateFileFingerprint calculates CRC32 fingerprint of the last 2KB of a file
func CalculateFileFingerprint(filepath string) (string, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", err
	}

	size := stat.Size()
	readSize := int64(2048)
	if size < readSize {
		readSize = size
	}

	if _, err = file.Seek(-readSize, io.SeekEnd); err != nil {
		return "", err
	}

	data := make([]byte, readSize)
	if _, err = io.ReadFull(file, data); err != nil {
		return "", err
	}

	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data)), nil
}

// FingerprintFiles combines size, mtime, inode and tail checksum of every
// path into one value. Order of paths does not matter.
func FingerprintFiles(paths []string) (string, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	h := crc32.NewIEEE()
	for _, p := range sorted {
		info, err := GetFileInfo(p)
		if err != nil {
			return "", err
		}
		tail, err := CalculateFileFingerprint(p)
		if err != nil {
			return "", fmt.Errorf("failed to fingerprint %s: %w", p, err)
		}
		fmt.Fprintf(h, "%s|%d|%d|%d|%s\n", p, info.Size, info.ModTime, info.Inode, tail)
	}
	return fmt.Sprintf("%08x", h.Sum32()), nil
}
