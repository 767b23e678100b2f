package filesystem

import (
	"crypto/md5"
	"fmt"
	"io"
	"time"
)

// Identity records what a file looked like at a point in time. Two
// identities match when size and content checksum are equal.
type Identity struct {
	Path       string
	MD5        string
	Size       int64
	ModTime    time.Time
	RecordedAt time.Time
}

// ComputeIdentity calculates the MD5 checksum and gathers file metadata.
// The file is streamed through the hash. It returns nil, nil for
// directories.
func ComputeIdentity(fsys ReadFS, filePath string) (*Identity, error) {
	info, err := fsys.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file %s: %w", filePath, err)
	}
	if info.IsDir() {
		return nil, nil
	}

	file, err := fsys.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s for checksumming: %w", filePath, err)
	}
	defer func() {
		_ = file.Close()
	}()

	hash := md5.New()
	n, err := io.Copy(hash, file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s for checksumming: %w", filePath, err)
	}

	return &Identity{
		Path:       filePath,
		MD5:        fmt.Sprintf("%x", hash.Sum(nil)),
		Size:       n,
		ModTime:    info.ModTime(),
		RecordedAt: time.Now(),
	}, nil
}

// Matches reports whether other describes the same file content.
func (id *Identity) Matches(other *Identity) bool {
	if id == nil || other == nil {
		return id == other
	}
	return id.Size == other.Size && id.MD5 == other.MD5
}
