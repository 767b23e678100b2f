package filesystem

import (
	"fmt"
	"io/fs"
	"path"
	"time"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
)

// SnapshotEntry is one file or directory inside a snapshot. Rel is the slash
// path relative to the snapshot root; the root itself has Rel ".".
type SnapshotEntry struct {
	Rel   string      `json:"rel"`
	IsDir bool        `json:"is_dir"`
	Mode  fs.FileMode `json:"mode"`
	Data  []byte      `json:"data,omitempty"`
	// Link is set for symbolic links, which are recorded rather than
	// followed.
	Link string `json:"link,omitempty"`
}

// Snapshot is the captured content of a file or directory tree, enough to
// recreate it after a delete or an overwrite.
type Snapshot struct {
	Path    string          `json:"path"`
	Type    core.PathType   `json:"type"`
	Entries []SnapshotEntry `json:"entries"`
	Size    int64           `json:"size"`
	TakenAt time.Time       `json:"taken_at"`
}

// SizeMB returns the content size in megabytes.
func (s *Snapshot) SizeMB() float64 {
	return float64(s.Size) / (1024 * 1024)
}

// TakeSnapshot captures name, recursing into directories. Entries are in
// pre-order so that restoring them in sequence creates parents first.
// Symbolic links are captured as links, never through their target.
func TakeSnapshot(fsys ReadFS, name string) (*Snapshot, error) {
	if s, ok := fsys.(Snapshotter); ok {
		return s.Snapshot(name)
	}

	info, err := fsys.Lstat(name)
	if err != nil {
		return nil, fmt.Errorf("cannot snapshot %s: %w", name, err)
	}

	snap := &Snapshot{Path: name, TakenAt: time.Now()}
	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := fsys.Readlink(name)
		if err != nil {
			return nil, fmt.Errorf("cannot snapshot %s: %w", name, err)
		}
		snap.Type = core.PathFile
		snap.Entries = []SnapshotEntry{{Rel: ".", Link: target}}
		return snap, nil
	}
	if !info.IsDir() {
		data, err := fsys.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("cannot snapshot %s: %w", name, err)
		}
		snap.Type = core.PathFile
		snap.Entries = []SnapshotEntry{{Rel: ".", Mode: info.Mode().Perm(), Data: data}}
		snap.Size = int64(len(data))
		return snap, nil
	}

	snap.Type = core.PathDir
	var walk func(abs, rel string, mode fs.FileMode) error
	walk = func(abs, rel string, mode fs.FileMode) error {
		snap.Entries = append(snap.Entries, SnapshotEntry{Rel: rel, IsDir: true, Mode: mode.Perm()})

		entries, err := fsys.ReadDir(abs)
		if err != nil {
			return fmt.Errorf("cannot read directory %s: %w", abs, err)
		}
		for _, entry := range entries {
			childAbs := path.Join(abs, entry.Name())
			childRel := path.Join(rel, entry.Name())
			childInfo, err := fsys.Lstat(childAbs)
			if err != nil {
				return fmt.Errorf("cannot stat %s: %w", childAbs, err)
			}
			if childInfo.Mode()&fs.ModeSymlink != 0 {
				target, err := fsys.Readlink(childAbs)
				if err != nil {
					return fmt.Errorf("cannot read link %s: %w", childAbs, err)
				}
				snap.Entries = append(snap.Entries, SnapshotEntry{Rel: childRel, Link: target})
				continue
			}
			if childInfo.IsDir() {
				if err := walk(childAbs, childRel, childInfo.Mode()); err != nil {
					return err
				}
				continue
			}
			data, err := fsys.ReadFile(childAbs)
			if err != nil {
				return fmt.Errorf("cannot read %s: %w", childAbs, err)
			}
			snap.Entries = append(snap.Entries, SnapshotEntry{Rel: childRel, Mode: childInfo.Mode().Perm(), Data: data})
			snap.Size += int64(len(data))
		}
		return nil
	}
	if err := walk(name, ".", info.Mode()); err != nil {
		return nil, err
	}
	return snap, nil
}

// RestoreSnapshot recreates snap at name. name must not exist.
func RestoreSnapshot(fsys FileSystem, name string, snap *Snapshot) error {
	if s, ok := fsys.(Snapshotter); ok {
		return s.Restore(name, snap)
	}
	if snap == nil {
		return fmt.Errorf("no snapshot to restore %s from", name)
	}
	for _, entry := range snap.Entries {
		target := path.Join(name, entry.Rel)
		if entry.Link != "" {
			if err := fsys.Symlink(entry.Link, target); err != nil {
				return fmt.Errorf("cannot restore link %s: %w", target, err)
			}
			continue
		}
		if entry.IsDir {
			if err := fsys.Mkdir(target, dirMode(entry.Mode)); err != nil {
				return fmt.Errorf("cannot restore directory %s: %w", target, err)
			}
			continue
		}
		if err := fsys.WriteFile(target, entry.Data, fileMode(entry.Mode)); err != nil {
			return fmt.Errorf("cannot restore file %s: %w", target, err)
		}
	}
	return nil
}

func dirMode(m fs.FileMode) fs.FileMode {
	if m.Perm() == 0 {
		return 0755
	}
	return m.Perm()
}

func fileMode(m fs.FileMode) fs.FileMode {
	if m.Perm() == 0 {
		return 0644
	}
	return m.Perm()
}
