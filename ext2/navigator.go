package ext2

import (
	"strings"

	ext2errors "github.com/dargueta/ext2fs/errors"
)

// RootInode is the fixed inode number of the filesystem root.
const RootInode InodeNum = 2

// navigatorFrame is one stack entry: the directory's inode number, its name
// as seen from its parent (empty for the root), and its parsed entries.
type navigatorFrame struct {
	inode InodeNum
	name  string
	dir   *Directory
}

// Navigator is a stack-of-directories cursor over the filesystem tree. It
// holds no back-pointers: ".." pops the stack, and is a no-op when the stack
// has a single frame (the root, whose own ".." record points to itself).
type Navigator struct {
	stack   []navigatorFrame
	resolve func(InodeNum) (*Directory, error)
}

// NewNavigator builds a Navigator rooted at the filesystem root. resolve
// parses a directory's blocks into a *Directory given its inode number; the
// Façade supplies this so the Navigator stays free of I/O concerns.
func NewNavigator(rootDir *Directory, resolve func(InodeNum) (*Directory, error)) *Navigator {
	return &Navigator{
		stack:   []navigatorFrame{{inode: RootInode, dir: rootDir}},
		resolve: resolve,
	}
}

// Clone returns a copy of the Navigator's stack so callers can attempt a
// multi-component navigate and discard it on failure without disturbing the
// original cursor.
func (nav *Navigator) Clone() *Navigator {
	stack := make([]navigatorFrame, len(nav.stack))
	copy(stack, nav.stack)
	return &Navigator{stack: stack, resolve: nav.resolve}
}

// CurrentDirectory returns the directory at the top of the stack.
func (nav *Navigator) CurrentDirectory() *Directory {
	return nav.stack[len(nav.stack)-1].dir
}

// CurrentInode returns the inode number at the top of the stack.
func (nav *Navigator) CurrentInode() InodeNum {
	return nav.stack[len(nav.stack)-1].inode
}

// PathString renders the stack as an absolute path, per spec.md §4.8.
func (nav *Navigator) PathString() string {
	if len(nav.stack) == 1 {
		return "/"
	}
	var b strings.Builder
	for _, frame := range nav.stack[1:] {
		b.WriteByte('/')
		b.WriteString(frame.name)
	}
	return b.String()
}

// Navigate resolves path against the current cursor, mutating it in place.
// An empty path is a no-op. A leading "/" pops to the root first. Any
// component that resolves to a non-directory, or doesn't exist, leaves the
// stack unchanged and returns NotADirectory or NotFound.
func (nav *Navigator) Navigate(path string) (err error) {
	if path == "" {
		return nil
	}
	saved := append([]navigatorFrame(nil), nav.stack...)
	defer func() {
		if err != nil {
			nav.stack = saved
		}
	}()
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}

	if strings.HasPrefix(path, "/") {
		nav.stack = nav.stack[:1]
		path = strings.TrimPrefix(path, "/")
		if path == "" {
			return nil
		}
	}

	component, rest, hasRest := strings.Cut(path, "/")

	switch component {
	case ".":
		// no-op
	case "..":
		if len(nav.stack) > 1 {
			nav.stack = nav.stack[:len(nav.stack)-1]
		}
	default:
		dir := nav.CurrentDirectory()
		rec, ok := dir.Lookup(component)
		if !ok {
			return ext2errors.ErrNotFound
		}
		if rec.Type() != InodeTypeDirectory {
			return ext2errors.ErrNotADirectory
		}

		childDir, err := nav.resolve(rec.Inode)
		if err != nil {
			return err
		}
		nav.stack = append(nav.stack, navigatorFrame{inode: rec.Inode, name: component, dir: childDir})
	}

	if hasRest {
		return nav.Navigate(rest)
	}
	return nil
}
