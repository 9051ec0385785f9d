// Package elf implements spec.md §4.9: parsing and loading static
// 64-bit RISC-V ELF executables, and building the image exec-replace
// installs in place of a running process. Header/program-header
// layout and the field-accessor style follow the byte-packing idiom
// ext2 and the rest of the kernel use for on-disk structures; the
// validation checks themselves (magic, class, machine, type) are
// grounded on the teacher's own chentry.go, retargeted from x86-64 to
// riscv64 and generalized from "patch one field" to "load the whole
// image."
package elf

import "errno"

const (
	Magic       = 0x464C457F
	ClassELF64  = 2
	DataLSB     = 1
	TypeExec    = 2
	MachineRISCV = 0xF3

	PT_LOAD = 1

	ehdrSize = 64
	phdrSize = 56

	maxPhnum = 16
)

// Header_t views a 64-byte ELF64 header in place.
type Header_t []uint8

func (h Header_t) Magic() uint32   { return ru32(h, 0) }
func (h Header_t) Class() uint8    { return h[4] }
func (h Header_t) Data() uint8     { return h[5] }
func (h Header_t) Type() uint16    { return ru16(h, 16) }
func (h Header_t) Machine() uint16 { return ru16(h, 18) }
func (h Header_t) Entry() uint64   { return ru64(h, 24) }
func (h Header_t) Phoff() uint64   { return ru64(h, 32) }
func (h Header_t) Phentsize() uint16 { return ru16(h, 54) }
func (h Header_t) Phnum() uint16   { return ru16(h, 56) }

// Phdr_t views a 56-byte ELF64 program header in place.
type Phdr_t []uint8

func (p Phdr_t) Type() uint32    { return ru32(p, 0) }
func (p Phdr_t) Offset() uint64  { return ru64(p, 8) }
func (p Phdr_t) Vaddr() uint64   { return ru64(p, 16) }
func (p Phdr_t) Filesz() uint64  { return ru64(p, 32) }
func (p Phdr_t) Memsz() uint64   { return ru64(p, 40) }

func ru16(b []uint8, off int) uint16 {
	return uint16(b[off]) | uint16(b[off+1])<<8
}
func ru32(b []uint8, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}
func ru64(b []uint8, off int) uint64 {
	lo := uint64(ru32(b, off))
	hi := uint64(ru32(b, off+4))
	return lo | hi<<32
}

/// Reader_i is the file surface the loader needs: a positioned read
/// of an exact-length region, satisfied by an open vfs file the same
/// way virtio.Device_t satisfies ext2's Disk_i.
type Reader_i interface {
	ReadAt(buf []uint8, off int) (int, errno.Err_t)
}

/// ValidateHeader checks the fixed fields spec.md requires: magic,
/// 64-bit little-endian class/data, ET_EXEC, EM_RISCV, and
/// phnum in [1,16].
func ValidateHeader(h Header_t) errno.Err_t {
	if len(h) < ehdrSize {
		return errno.EELF_NOPHDR
	}
	if h.Magic() != Magic {
		return errno.EELF_MAGIC
	}
	if h.Class() != ClassELF64 || h.Data() != DataLSB {
		return errno.EELF_ARCH
	}
	if h.Machine() != MachineRISCV {
		return errno.EELF_ARCH
	}
	if h.Type() != TypeExec {
		return errno.EELF_TYPE
	}
	if h.Phnum() < 1 || h.Phnum() > maxPhnum {
		return errno.EELF_NOPHDR
	}
	if h.Phentsize() != phdrSize {
		return errno.EELF_NOPHDR
	}
	return 0
}

/// Image_t is the result of a successful Load: a flat buffer ready to
/// be mapped at a process's code base, and the entry point expressed
/// as an offset from the start of that buffer (since the buffer is
/// always mapped starting at proc.UserCodeBase, callers compute the
/// absolute entry as UserCodeBase + EntryOff).
type Image_t struct {
	Code     []uint8
	EntryOff uint64
}

/// Load implements spec.md's "Load as new process": reads and
/// validates the header, reads every program header, computes
/// min_vaddr/max_vaddr across PT_LOAD segments, allocates a buffer
/// spanning that range, and for each PT_LOAD segment reads p_filesz
/// bytes into the buffer's corresponding offset, zeroing the residual
/// p_memsz-p_filesz.
func Load(r Reader_i) (Image_t, errno.Err_t) {
	hdrBuf := make([]uint8, ehdrSize)
	if n, err := r.ReadAt(hdrBuf, 0); err != 0 || n != ehdrSize {
		if err != 0 {
			return Image_t{}, err
		}
		return Image_t{}, errno.EELF_NOPHDR
	}
	h := Header_t(hdrBuf)
	if err := ValidateHeader(h); err != 0 {
		return Image_t{}, err
	}

	phnum := int(h.Phnum())
	phBuf := make([]uint8, phnum*phdrSize)
	if n, err := r.ReadAt(phBuf, int(h.Phoff())); err != 0 || n != len(phBuf) {
		if err != 0 {
			return Image_t{}, err
		}
		return Image_t{}, errno.EELF_NOPHDR
	}

	var loads []Phdr_t
	var minVaddr, maxVaddr uint64
	first := true
	for i := 0; i < phnum; i++ {
		ph := Phdr_t(phBuf[i*phdrSize : (i+1)*phdrSize])
		if ph.Type() != PT_LOAD {
			continue
		}
		loads = append(loads, ph)
		end := ph.Vaddr() + ph.Memsz()
		if first {
			minVaddr, maxVaddr = ph.Vaddr(), end
			first = false
			continue
		}
		if ph.Vaddr() < minVaddr {
			minVaddr = ph.Vaddr()
		}
		if end > maxVaddr {
			maxVaddr = end
		}
	}
	if first {
		return Image_t{}, errno.EELF_NOPHDR
	}

	size := maxVaddr - minVaddr
	buf := make([]uint8, size)
	for _, ph := range loads {
		segOff := ph.Vaddr() - minVaddr
		fsz := ph.Filesz()
		if fsz > 0 {
			n, err := r.ReadAt(buf[segOff:segOff+fsz], int(ph.Offset()))
			if err != 0 {
				return Image_t{}, err
			}
			if uint64(n) != fsz {
				return Image_t{}, errno.EELF_NOPHDR
			}
		}
		// buf is already zero-valued past fsz up to Memsz, since
		// make([]uint8, size) zero-initializes the whole buffer.
	}

	return Image_t{Code: buf, EntryOff: h.Entry() - minVaddr}, 0
}
