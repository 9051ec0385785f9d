package defs

/// Pid_t identifies a process slot in the process table.
type Pid_t int

/// Tid_t identifies the single thread of execution within a process.
/// ThunderOS processes are single-threaded, but the type is kept
/// distinct from Pid_t so trap/signal code that takes "the faulting
/// context" reads the same way the teacher kernel's did.
type Tid_t int

// Open flags, as passed to the open(2) syscall in a0/a1 registers.
const (
	O_RDONLY int = 0
	O_WRONLY int = 1
	O_RDWR   int = 2
	O_CREAT  int = 0x40
	O_TRUNC  int = 0x200
	O_APPEND int = 0x400
	O_DIRECTORY int = 0x10000
)

// Seek whence values.
const (
	SEEK_SET int = 0
	SEEK_CUR int = 1
	SEEK_END int = 2
)

// Signal numbers. Kept small and POSIX-shaped; only the ones
// spec.md names a behavior for are given special handling by proc.
const (
	SIGHUP  int = 1
	SIGINT  int = 2
	SIGKILL int = 9
	SIGUSR1 int = 10
	SIGSEGV int = 11
	SIGUSR2 int = 12
	SIGTERM int = 15
	SIGILL  int = 4
	NSIG    int = 32
)

// File-type bits for directory entries and inode mode words, matching
// the ext2 on-disk encoding used in directory records' file_type byte.
const (
	FT_UNKNOWN uint8 = 0
	FT_REG     uint8 = 1
	FT_DIR     uint8 = 2
)

// Default modes per spec.md §6.
const (
	DefaultFileMode = 0644
	DefaultDirMode  = 0755
)

// Inode mode-word type bits, matching ext2's on-disk i_mode encoding;
// exposed here so callers above the filesystem layer (chdir's
// directory check) can test stat.Stat_t.Mode() without importing ext2.
const (
	S_IFDIR uint = 0x4000
	S_IFREG uint = 0x8000
)
