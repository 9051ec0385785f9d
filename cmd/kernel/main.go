// Command kernel is ThunderOS's entry point: it runs the fixed boot
// sequence spec.md §4.1 lays out (console, traps, timer, PMM, paging,
// DMA, the VirtIO block device, the ext2 root, the process subsystem,
// the scheduler) and never returns. Grounded on proc.Boot/Run's own
// split between "install the trap vector" and "run forever"; nothing
// under kernel/ survived retrieval besides chentry.go, so the boot
// preamble that sets up a stack and clears bss before jumping here is
// assumed already satisfied by the platform's SBI firmware, exactly
// as spec.md's boot contract states, rather than invented from
// nothing.
package main

import (
	"defs"
	"elf"
	"errno"
	"ext2"
	"hal"
	"mem"
	"pmm"
	"proc"
	"ustr"
	"vfs"
	"virtio"
	"vm"
)

// Platform memory map, per spec.md §6. VirtioMmioBase is the
// QEMU-virt convention for virtio-mmio device slot 0; the real base is
// platform-defined and belongs here rather than in package virtio.
const (
	RamBase  uintptr = 0x80000000
	RamSize  uintptr = 128 * 1024 * 1024
	KernLoad uintptr = 0x80200000

	VirtioMmioBase uintptr = 0x10001000
	VirtioMmioSize uintptr = 4096

	// kernReserved is a conservative flat reservation for the kernel's
	// own text/data/bss/boot stacks, carved out of the front of RAM
	// ahead of everything pmm hands to callers. A real linker script
	// would replace this with the _end symbol's actual address.
	kernReserved uintptr = 16 * 1024 * 1024
)

var console hal.Uart16550_t
var timer hal.Clint_t

// initPath is where the first user program lives once the ext2 image
// is mounted at "/".
const initPath = "/init"

func mapRegion(start, size uintptr, perms mem.Pa_t) {
	if err := vm.InitKernelRoot(start, size, perms); err != 0 {
		panic("kernel: failed to map boot region")
	}
}

// loadInit opens initPath through the freshly mounted root filesystem,
// loads it as an ELF image, and creates the first user process.
func loadInit() (*proc.Pcb_t, errno.Err_t) {
	fdn, err := vfs.Open(ustr.Ustr(initPath), defs.O_RDONLY, 0)
	if err != 0 {
		return nil, err
	}
	defer vfs.Close(fdn)

	img, err := elf.Load(fdReader{fdn})
	if err != 0 {
		return nil, err
	}
	entry := proc.UserCodeBase + uintptr(img.EntryOff)
	return proc.ProcessCreateUserAt("init", img.Code, entry)
}

// fdReader adapts an open vfs fd to elf.Reader_i, seeking to off before
// every read since vfs has no pread equivalent.
type fdReader struct {
	fdn int
}

func (r fdReader) ReadAt(buf []uint8, off int) (int, errno.Err_t) {
	if _, err := vfs.Seek(r.fdn, off, defs.SEEK_SET); err != 0 {
		return 0, err
	}
	return vfs.Read(r.fdn, buf)
}

func main() {
	console.Init(hal.Uart0Base)
	vfs.Init(&console)

	proc.Boot()

	timer.Init(hal.ClintBase)
	proc.SetTimerRearm(timer.NextTick)

	pmm.Init(RamBase+kernReserved, RamSize-kernReserved)

	mapRegion(RamBase, kernReserved, mem.PTE_R|mem.PTE_W|mem.PTE_X)
	mapRegion(RamBase+kernReserved, RamSize-kernReserved, mem.PTE_R|mem.PTE_W)
	mapRegion(hal.Uart0Base, hal.Uart0Size, mem.PTE_R|mem.PTE_W)
	mapRegion(hal.ClintBase, hal.ClintSize, mem.PTE_R|mem.PTE_W)
	mapRegion(hal.PlicBase, hal.PlicSize, mem.PTE_R|mem.PTE_W)
	mapRegion(VirtioMmioBase, VirtioMmioSize, mem.PTE_R|mem.PTE_W)

	_, rootPa := vm.KernelRoot()
	vm.SwitchRoot(rootPa)

	disk, err := virtio.Probe(VirtioMmioBase)
	if err != 0 {
		panic("kernel: virtio block probe failed")
	}

	ctx, err := ext2.Mount(disk)
	if err != 0 {
		panic("kernel: ext2 mount failed")
	}
	vfs.Mount(ustr.MkUstrRoot(), &ext2.Filesystem_t{Ctx: ctx})

	timer.NextTick()

	init_, err := loadInit()
	if err != 0 {
		panic("kernel: failed to load /init")
	}
	proc.ReadyProcess(init_)

	proc.Run()
}
