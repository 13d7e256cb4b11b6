package ext2

// Entry is a tagged union over the kinds of filesystem object a path can
// resolve to. It replaces a polymorphic class hierarchy with a single
// by-value record carrying the inode data directly — there's no heap
// indirection to manage, and copying an Entry is just a struct copy.
type Entry struct {
	Name  string
	Inode InodeNum
	Raw   RawInode

	// Dir is populated only when Raw.Type() == InodeTypeDirectory.
	Dir *Directory
}

// IsDirectory reports whether this entry is a directory.
func (e Entry) IsDirectory() bool {
	return e.Raw.Type() == InodeTypeDirectory
}

// IsFile reports whether this entry is a regular file.
func (e Entry) IsFile() bool {
	return e.Raw.Type() == InodeTypeFile
}
