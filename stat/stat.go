// Package stat defines the on-the-wire layout returned by the fstat
// syscall. Fields are populated by ext2 from its inode and superblock
// and copied out to user memory as raw bytes by the address space's
// K2user.
package stat

import "unsafe"

/// Stat_t mirrors struct stat's fields that ext2 can actually populate.
/// ThunderOS has no notion of hard-link-spanning device IDs beyond the
/// single mounted disk, so Dev and Rdev are either D_RAWDISK or, for
/// character devices like the console, the Mkdev-encoded major/minor.
type Stat_t struct {
	_dev    uint
	_ino    uint
	_mode   uint
	_nlink  uint
	_uid    uint
	_gid    uint
	_rdev   uint
	_size   uint
	_blocks uint
	_m_sec  uint
	_m_nsec uint
}

/// Wdev stores the device ID.
func (st *Stat_t) Wdev(v uint) {
	st._dev = v
}

/// Wino stores the inode number.
func (st *Stat_t) Wino(v uint) {
	st._ino = v
}

/// Wmode records the file mode.
func (st *Stat_t) Wmode(v uint) {
	st._mode = v
}

/// Wnlink records the hard-link count.
func (st *Stat_t) Wnlink(v uint) {
	st._nlink = v
}

/// Wuid records the owning user ID. ext2 on ThunderOS carries exactly
/// one owner, root, so every inode reports uid 0.
func (st *Stat_t) Wuid(v uint) {
	st._uid = v
}

/// Wgid records the owning group ID.
func (st *Stat_t) Wgid(v uint) {
	st._gid = v
}

/// Wsize records the file size.
func (st *Stat_t) Wsize(v uint) {
	st._size = v
}

/// Wrdev stores the rdev field.
func (st *Stat_t) Wrdev(v uint) {
	st._rdev = v
}

/// Wblocks records the number of 512-byte sectors allocated to the file,
/// matching POSIX st_blocks regardless of ext2's own block size.
func (st *Stat_t) Wblocks(v uint) {
	st._blocks = v
}

/// Wmtime records the last-modified time as seconds/nanoseconds since
/// the epoch, taken from the inode's i_mtime field.
func (st *Stat_t) Wmtime(sec, nsec uint) {
	st._m_sec = sec
	st._m_nsec = nsec
}

/// Mode returns the stored mode value.
func (st *Stat_t) Mode() uint {
	return st._mode
}

/// Nlink returns the stored hard-link count.
func (st *Stat_t) Nlink() uint {
	return st._nlink
}

/// Size returns the stored size.
func (st *Stat_t) Size() uint {
	return st._size
}

/// Rdev returns the stored rdev.
func (st *Stat_t) Rdev() uint {
	return st._rdev
}

/// Rino returns the stored inode number.
func (st *Stat_t) Rino() uint {
	return st._ino
}

/// Blocks returns the stored 512-byte sector count.
func (st *Stat_t) Blocks() uint {
	return st._blocks
}

/// Bytes exposes the raw bytes of the structure for copying to user
/// memory verbatim.
func (st *Stat_t) Bytes() []uint8 {
	const sz = unsafe.Sizeof(*st)
	sl := (*[sz]uint8)(unsafe.Pointer(&st._dev))
	return sl[:]
}
