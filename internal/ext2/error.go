package ext2

import "errors"

var (
	// ErrBadMagic occurs when the superblock does not carry the ext2 magic.
	ErrBadMagic = errors.New("not an ext2 filesystem")

	// ErrUnsupportedBlockSize occurs when the filesystem block size is not
	// 1024 bytes.
	ErrUnsupportedBlockSize = errors.New("unsupported block size")

	// ErrInvalidInode occurs when an inode number is zero, beyond the inode
	// count or its group has no inode table.
	ErrInvalidInode = errors.New("invalid inode number")

	// ErrBeyondTripleIndirect occurs when an offset lies past the range a
	// triply indirect block can address.
	ErrBeyondTripleIndirect = errors.New("offset beyond triple indirect range")

	// ErrAddressRange occurs when a byte address does not fit the 32 bit
	// block addressing of the storage device.
	ErrAddressRange = errors.New("address beyond storage range")

	// ErrCorruptDirectory occurs when a directory entry has a zero record
	// length.
	ErrCorruptDirectory = errors.New("corrupt directory entry")

	// ErrNoSuchFile occurs when a file index is not in the directory index.
	ErrNoSuchFile = errors.New("no such file")

	// ErrNoFileSelected occurs when file data is read before a file was
	// selected.
	ErrNoFileSelected = errors.New("no file selected")
)
