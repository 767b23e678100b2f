package operations

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/arthur-debert/fsbatch/pkg/fsbatch/core"
)

// Kind is the closed set of operation variants. Adding a kind means
// extending the validator, the engine and the reverter, each of which
// switches over every Kind.
type Kind string

const (
	KindCreateDir     Kind = "create_dir"
	KindCopy          Kind = "copy"
	KindMove          Kind = "move"
	KindDelete        Kind = "delete"
	KindWriteFile     Kind = "write_file"
	KindCreateSymlink Kind = "create_symlink"
)

// Kinds lists every operation kind.
var Kinds = []Kind{KindCreateDir, KindCopy, KindMove, KindDelete, KindWriteFile, KindCreateSymlink}

// ParseKind converts a plan-file name to a Kind. A few aliases are accepted.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "create_dir", "create_directory", "mkdir":
		return KindCreateDir, nil
	case "copy", "cp":
		return KindCopy, nil
	case "move", "mv", "rename":
		return KindMove, nil
	case "delete", "remove", "rm":
		return KindDelete, nil
	case "write_file", "create_file", "write":
		return KindWriteFile, nil
	case "create_symlink", "symlink", "ln":
		return KindCreateSymlink, nil
	default:
		return "", core.Newf(core.KindInvalidOperation, "unknown operation kind %q", s)
	}
}

// Default permission bits.
const (
	DefaultDirMode  fs.FileMode = 0755
	DefaultFileMode fs.FileMode = 0644
)

// Operation is an immutable declaration of one filesystem mutation. It
// carries intent only, never a result. Fields not used by a Kind are empty.
//
// Operations are plain values: copying one yields an independent declaration,
// so a batch can never be mutated through an operation the caller kept.
type Operation struct {
	kind    Kind
	path    string // CreateDir, Delete, WriteFile, CreateSymlink (the link)
	src     string // Copy, Move
	dst     string // Copy, Move
	content []byte // WriteFile
	mode    fs.FileMode
	target  string // CreateSymlink, kept verbatim
}

// CreateDir declares the creation of a single directory.
func CreateDir(p string) Operation {
	return Operation{kind: KindCreateDir, path: cleanPath(p), mode: DefaultDirMode}
}

// CreateDirMode declares the creation of a directory with explicit permissions.
func CreateDirMode(p string, mode fs.FileMode) Operation {
	op := CreateDir(p)
	op.mode = mode.Perm()
	return op
}

// Copy declares copying the file src to dst.
func Copy(src, dst string) Operation {
	return Operation{kind: KindCopy, src: cleanPath(src), dst: cleanPath(dst)}
}

// Move declares renaming src to dst.
func Move(src, dst string) Operation {
	return Operation{kind: KindMove, src: cleanPath(src), dst: cleanPath(dst)}
}

// Delete declares removing p, recursively if it is a directory.
func Delete(p string) Operation {
	return Operation{kind: KindDelete, path: cleanPath(p)}
}

// WriteFile declares writing content to p, creating or overwriting it.
func WriteFile(p string, content []byte, mode fs.FileMode) Operation {
	if mode == 0 {
		mode = DefaultFileMode
	}
	return Operation{
		kind:    KindWriteFile,
		path:    cleanPath(p),
		content: append([]byte(nil), content...),
		mode:    mode.Perm(),
	}
}

// CreateSymlink declares a symbolic link at link pointing to target. The
// target is stored as given and does not need to exist.
func CreateSymlink(target, link string) Operation {
	return Operation{kind: KindCreateSymlink, path: cleanPath(link), target: target}
}

func cleanPath(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

// Kind returns the operation variant.
func (op Operation) Kind() Kind { return op.kind }

// Path returns the target path for CreateDir, Delete, WriteFile and
// CreateSymlink.
func (op Operation) Path() string { return op.path }

// Src returns the source path of Copy and Move.
func (op Operation) Src() string { return op.src }

// Dst returns the destination path of Copy and Move.
func (op Operation) Dst() string { return op.dst }

// LinkTarget returns what a CreateSymlink points at.
func (op Operation) LinkTarget() string { return op.target }

// Mode returns the permission bits used by CreateDir and WriteFile.
func (op Operation) Mode() fs.FileMode { return op.mode }

// Content returns a copy of the bytes written by WriteFile.
func (op Operation) Content() []byte { return append([]byte(nil), op.content...) }

// Target is the path the operation creates or removes: the destination for
// Copy and Move, Path otherwise.
func (op Operation) Target() string {
	switch op.kind {
	case KindCopy, KindMove:
		return op.dst
	default:
		return op.path
	}
}

// Check reports malformed construction. It is the only check made at
// append time and never touches the filesystem.
func (op Operation) Check() error {
	invalid := func(format string, args ...interface{}) error {
		e := core.Newf(core.KindInvalidOperation, format, args...)
		e.Op = string(op.kind)
		return e
	}

	switch op.kind {
	case KindCreateDir, KindDelete, KindWriteFile, KindCreateSymlink:
		if op.path == "" {
			return invalid("path cannot be empty")
		}
		if isRootPath(op.path) {
			return invalid("cannot %s the root directory %q", op.kind, op.path)
		}
		if op.kind == KindCreateSymlink && op.target == "" {
			return invalid("symlink target cannot be empty")
		}
	case KindCopy, KindMove:
		if op.src == "" || op.dst == "" {
			return invalid("source and destination are required")
		}
		if isRootPath(op.src) || isRootPath(op.dst) {
			return invalid("cannot %s the root directory", op.kind)
		}
		if op.src == op.dst {
			return invalid("source and destination are the same path %q", op.src)
		}
		if op.kind == KindMove && isWithin(op.dst, op.src) {
			return invalid("cannot move %q inside itself (%q)", op.src, op.dst)
		}
	case "":
		return invalid("operation has no kind")
	default:
		return invalid("unknown operation kind %q", op.kind)
	}
	return nil
}

// RequirementKind says what must hold for a required path.
type RequirementKind int

const (
	// MustExist requires the path to exist, as a file or a directory.
	MustExist RequirementKind = iota
	// MustBeFile requires the path to exist and not be a directory.
	MustBeFile
	// MustBeDir requires the path to exist and be a directory.
	MustBeDir
)

// String returns the string representation of the RequirementKind
func (k RequirementKind) String() string {
	switch k {
	case MustBeFile:
		return "must be a file"
	case MustBeDir:
		return "must be a directory"
	default:
		return "must exist"
	}
}

// Requirement is a path that must be in a given state before the operation runs.
type Requirement struct {
	Path string
	Kind RequirementKind
}

// String returns a human-readable form such as "code must be a directory".
func (r Requirement) String() string {
	return fmt.Sprintf("%s %s", r.Path, r.Kind)
}

// Requires lists the paths that must pre-exist. Parents that are "." or "/"
// are always present and omitted.
func (op Operation) Requires() []Requirement {
	var reqs []Requirement
	parent := func(p string) {
		if dir := path.Dir(p); !isRootPath(dir) {
			reqs = append(reqs, Requirement{Path: dir, Kind: MustBeDir})
		}
	}

	switch op.kind {
	case KindCreateDir, KindWriteFile, KindCreateSymlink:
		parent(op.path)
	case KindCopy:
		reqs = append(reqs, Requirement{Path: op.src, Kind: MustBeFile})
		parent(op.dst)
	case KindMove:
		reqs = append(reqs, Requirement{Path: op.src, Kind: MustExist})
		parent(op.dst)
	case KindDelete:
		reqs = append(reqs, Requirement{Path: op.path, Kind: MustExist})
	}
	return reqs
}

// Produces lists the paths that exist after the operation ran.
func (op Operation) Produces() []string {
	switch op.kind {
	case KindCreateDir, KindWriteFile, KindCreateSymlink:
		return []string{op.path}
	case KindCopy, KindMove:
		return []string{op.dst}
	default:
		return nil
	}
}

// Removes lists the paths that no longer exist after the operation ran.
func (op Operation) Removes() []string {
	switch op.kind {
	case KindMove:
		return []string{op.src}
	case KindDelete:
		return []string{op.path}
	default:
		return nil
	}
}

// ProducesType is the type of object the operation leaves at each produced
// path. Move reports PathAbsent because it carries over whatever src is. A
// symlink counts as a file whatever it points at.
func (op Operation) ProducesType() core.PathType {
	switch op.kind {
	case KindCreateDir:
		return core.PathDir
	case KindCopy, KindWriteFile, KindCreateSymlink:
		return core.PathFile
	default:
		return core.PathAbsent
	}
}

// Describe returns a one-line human-readable description.
func (op Operation) Describe() string {
	switch op.kind {
	case KindCreateDir:
		return fmt.Sprintf("create directory %s", op.path)
	case KindCopy:
		return fmt.Sprintf("copy %s to %s", op.src, op.dst)
	case KindMove:
		return fmt.Sprintf("move %s to %s", op.src, op.dst)
	case KindDelete:
		return fmt.Sprintf("delete %s", op.path)
	case KindWriteFile:
		return fmt.Sprintf("write %d bytes to %s", len(op.content), op.path)
	case KindCreateSymlink:
		return fmt.Sprintf("link %s to %s", op.path, op.target)
	default:
		return fmt.Sprintf("unknown operation %q", op.kind)
	}
}

// String implements fmt.Stringer.
func (op Operation) String() string {
	switch op.kind {
	case KindCopy, KindMove:
		return fmt.Sprintf("%s(%s, %s)", op.kind, op.src, op.dst)
	case KindCreateSymlink:
		return fmt.Sprintf("%s(%s -> %s)", op.kind, op.path, op.target)
	default:
		return fmt.Sprintf("%s(%s)", op.kind, op.path)
	}
}

// Equal reports whether two operations declare the same mutation.
func (op Operation) Equal(other Operation) bool {
	return op.kind == other.kind &&
		op.path == other.path &&
		op.src == other.src &&
		op.dst == other.dst &&
		op.mode == other.mode &&
		op.target == other.target &&
		string(op.content) == string(other.content)
}

func isRootPath(p string) bool {
	return p == "." || p == "/"
}

// isWithin reports whether p is base or lies below it.
func isWithin(p, base string) bool {
	if p == base {
		return true
	}
	if base == "." {
		return !path.IsAbs(p) && p != ".." && !strings.HasPrefix(p, "../")
	}
	return strings.HasPrefix(p, strings.TrimSuffix(base, "/")+"/")
}

// IsWithin reports whether p is base or a descendant of base.
func IsWithin(p, base string) bool {
	return isWithin(path.Clean(p), path.Clean(base))
}
