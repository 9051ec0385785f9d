// Package vm implements Sv39 paging: the kernel's own root page table,
// per-process user address spaces, and the DMA allocator devices use
// for virtqueues and request buffers. spec.md §9 rules out demand
// paging, so unlike the teacher's Vm_t there is no Vmregion/COW
// machinery here — map_user_code and map_user_memory allocate and
// populate every page eagerly, and a process's Vma_t list exists only
// so Uvmfree knows which leaf pages to return to pmm.
package vm

import "sync"
import "unsafe"

import "errno"
import "hal"
import "mem"
import "pmm"
import "ustr"
import "util"

const PGSIZE = mem.PGSIZE
const PGSHIFT = mem.PGSHIFT
const PGOFFSET = mem.PGOFFSET

// Sv39 VPN field width: 9 bits per level, 3 levels.
const vpnBits = 9
const vpnMask = (1 << vpnBits) - 1

/// Vma_t records one mapped, non-overlapping range of a process's user
/// address space, exactly as much bookkeeping as Uvmfree needs to walk
/// and release every leaf page it owns.
type Vma_t struct {
	Start uintptr
	Pages int
	Perms mem.Pa_t
}

/// Vm_t is one process's address space: its root page-table page plus
/// the list of VMAs carved out of it.
type Vm_t struct {
	sync.Mutex
	Root   *mem.Pmap_t
	P_root mem.Pa_t
	Vmas   []Vma_t
}

// kernelRoot is the single, statically-owned kernel page table; every
// user Vm_t's root is seeded by copying its kernel half (entries 2..511;
// entries 0..1 are the user half) from this table.
var kernelRoot mem.Pmap_t
var kernelRootPa mem.Pa_t

/// KernelRoot returns the kernel's singleton root table, allocated
/// statically rather than from pmm so it exists before PMM does during
/// very early boot diagnostics.
func KernelRoot() (*mem.Pmap_t, mem.Pa_t) {
	return &kernelRoot, kernelRootPa
}

/// InitKernelRoot identity-maps [start, start+size) into the kernel's
/// root table with the given permissions. Called once per region
/// during boot (text+data RWX, the rest of RAM RW, then the UART,
/// CLINT, PLIC and VirtIO MMIO pages) before switch_root enables paging.
func InitKernelRoot(start, size uintptr, perms mem.Pa_t) errno.Err_t {
	if kernelRootPa == 0 {
		kernelRootPa = mem.Pa_t(pmmAllocZeroed())
	}
	aligned := uintptr(util.Rounddown(int(start), PGSIZE))
	end := uintptr(util.Roundup(int(aligned)+int(size), PGSIZE))
	for va := aligned; va < end; va += PGSIZE {
		if err := mapInto(&kernelRoot, va, mem.Pa_t(va), perms|mem.PTE_V); err != 0 {
			return err
		}
	}
	return 0
}

func pmmAllocZeroed() uintptr {
	p := pmm.AllocPage()
	if p == 0 {
		panic("out of physical memory during boot mapping")
	}
	pg := mem.Dmap(mem.Pa_t(p))
	for i := range pg {
		pg[i] = 0
	}
	return p
}

func vpn(va uintptr, level uint) uintptr {
	return (va >> (PGSHIFT + vpnBits*level)) & vpnMask
}

// mapInto walks (allocating interior nodes from pmm as needed) down to
// the leaf PTE for va in root and installs paddr|perms there. Mapping
// an already-valid leaf is an error (spec.md §4.3).
func mapInto(root *mem.Pmap_t, va uintptr, paddr mem.Pa_t, perms mem.Pa_t) errno.Err_t {
	node := root
	for level := 2; level > 0; level-- {
		idx := vpn(va, uint(level))
		pte := &node[idx]
		if *pte&mem.PTE_V == 0 {
			child := pmmAllocZeroed()
			*pte = mem.Pa_t(child) | mem.PTE_V
		} else if *pte&(mem.PTE_R|mem.PTE_W|mem.PTE_X) != 0 {
			return errno.EFS_CORRUPT
		}
		childPa := *pte &^ mem.PGOFFSET
		node = (*mem.Pmap_t)(pmapAt(childPa))
	}
	idx := vpn(va, 0)
	pte := &node[idx]
	if *pte&mem.PTE_V != 0 {
		return errno.EINVAL
	}
	*pte = paddr&^mem.PGOFFSET | perms
	return 0
}

func pmapAt(pa mem.Pa_t) *mem.Pmap_t {
	pg := mem.Dmap(pa)
	return (*mem.Pmap_t)(unsafe.Pointer(pg))
}

/// Map installs paddr at vaddr in root with the given permission bits.
func Map(root *mem.Pmap_t, vaddr uintptr, paddr mem.Pa_t, perms mem.Pa_t) errno.Err_t {
	return mapInto(root, vaddr, paddr, perms|mem.PTE_V)
}

/// walkLeaf returns the leaf PTE for va in root without creating
/// intermediate nodes, or nil if any level along the way is absent. A
/// leaf found at a non-leaf level is a corruption error.
func walkLeaf(root *mem.Pmap_t, va uintptr) (*mem.Pa_t, errno.Err_t) {
	node := root
	for level := 2; level > 0; level-- {
		idx := vpn(va, uint(level))
		pte := &node[idx]
		if *pte&mem.PTE_V == 0 {
			return nil, 0
		}
		if *pte&(mem.PTE_R|mem.PTE_W|mem.PTE_X) != 0 {
			return nil, errno.EFS_CORRUPT
		}
		childPa := *pte &^ mem.PGOFFSET
		node = pmapAt(childPa)
	}
	idx := vpn(va, 0)
	return &node[idx], 0
}

/// Unmap clears the leaf PTE for vaddr in root, returning the physical
/// page it referenced (0 if it was not mapped).
func Unmap(root *mem.Pmap_t, vaddr uintptr) mem.Pa_t {
	pte, err := walkLeaf(root, vaddr)
	if err != 0 || pte == nil || *pte&mem.PTE_V == 0 {
		return 0
	}
	pa := *pte &^ mem.PGOFFSET
	*pte = 0
	return pa
}

/// Translate returns the physical address vaddr maps to in root, or
/// (0, false) if unmapped.
func Translate(root *mem.Pmap_t, vaddr uintptr) (mem.Pa_t, bool) {
	pte, err := walkLeaf(root, vaddr)
	if err != 0 || pte == nil || *pte&mem.PTE_V == 0 {
		return 0, false
	}
	off := mem.Pa_t(vaddr) & mem.PGOFFSET
	return (*pte &^ mem.PGOFFSET) | off, true
}

/// FlushTlb invalidates the TLB; vaddr==0 flushes all entries. Backed
/// by sfence.vma in flush_riscv64.s.
func FlushTlb(vaddr uintptr)

/// CreateUserRoot allocates a fresh root page table, copies the kernel
/// half (entries 2..511, per spec.md §4.3) from the kernel root, and
/// leaves the user half (entries 0..1) empty. UART and CLINT both fall
/// within entry 0's 1GiB span (below UserStackTop's 2GiB boundary), so
/// they are not reached by the entries-2..511 copy; they are mapped in
/// separately so trap handling (console I/O, timer rearm) still works
/// once switch_root makes this the active root.
func CreateUserRoot() (*mem.Pmap_t, mem.Pa_t) {
	pa := mem.Pa_t(pmmAllocZeroed())
	root := pmapAt(pa)
	for i := 2; i < 512; i++ {
		root[i] = kernelRoot[i]
	}
	if err := mapMmioPages(root, hal.Uart0Base, hal.Uart0Size); err != 0 {
		panic("vm: failed to map UART into user root")
	}
	if err := mapMmioPages(root, hal.ClintBase, hal.ClintSize); err != 0 {
		panic("vm: failed to map CLINT into user root")
	}
	return root, pa
}

// mapMmioPages maps [base, base+size) into root with the same R|W
// permissions InitKernelRoot uses for the kernel's own UART/CLINT
// mappings (no X, no U: this is supervisor-mode MMIO access, not a
// user-accessible region).
func mapMmioPages(root *mem.Pmap_t, base, size uint64) errno.Err_t {
	aligned := uintptr(util.Rounddown(int(base), PGSIZE))
	end := uintptr(util.Roundup(int(base)+int(size), PGSIZE))
	for va := aligned; va < end; va += PGSIZE {
		if err := mapInto(root, va, mem.Pa_t(va), mem.PTE_R|mem.PTE_W|mem.PTE_V); err != 0 {
			return err
		}
	}
	return 0
}

/// FreeRootTree post-order-walks root's interior nodes under the user
/// half (entries 0..1), returning each to pmm. Entries 2..511 point
/// into the kernel root's shared subtree and must never be walked
/// here. It never touches leaf data pages; the caller frees those via
/// its Vma_t list. Forbidden on the kernel root.
func FreeRootTree(root *mem.Pmap_t, rootPa mem.Pa_t) {
	if root == &kernelRoot {
		panic("cannot free the kernel root")
	}
	for i := 0; i < 2; i++ {
		freeInterior(root, 2, i)
	}
	pmm.FreePage(uintptr(rootPa))
}

func freeInterior(node *mem.Pmap_t, level int, idx int) {
	pte := node[idx]
	if pte&mem.PTE_V == 0 {
		return
	}
	if pte&(mem.PTE_R|mem.PTE_W|mem.PTE_X) != 0 {
		// leaf: caller's responsibility, not ours.
		return
	}
	childPa := pte &^ mem.PGOFFSET
	child := pmapAt(childPa)
	if level > 1 {
		for i := 0; i < 512; i++ {
			freeInterior(child, level-1, i)
		}
	}
	pmm.FreePage(uintptr(childPa))
}

/// MapUserCode allocates size bytes worth of physical pages, zeros
/// them, copies kernelBytes into them starting at the first page's
/// base (uv is rounded down to a page boundary, so an intra-page offset
/// in uv is not applied to the copy), and installs leaves V|R|X|U at uv
/// in root.
func MapUserCode(root *mem.Pmap_t, uv uintptr, kernelBytes []uint8, size int) ([]Vma_t, errno.Err_t) {
	return mapUserPages(root, uv, kernelBytes, size, mem.PTE_V|mem.PTE_R|mem.PTE_X|mem.PTE_U)
}

/// MapUserMemory allocates and zeros fresh pages covering size bytes
/// at uv when phys==0, or maps the caller-supplied physically
/// contiguous range starting at phys otherwise. Installs V|R|U or
/// V|R|W|U leaves depending on writable.
func MapUserMemory(root *mem.Pmap_t, uv uintptr, phys mem.Pa_t, size int, writable bool) ([]Vma_t, errno.Err_t) {
	perms := mem.PTE_V | mem.PTE_R | mem.PTE_U
	if writable {
		perms |= mem.PTE_W
	}
	if phys != 0 {
		return mapFixedPages(root, uv, phys, size, perms)
	}
	return mapUserPages(root, uv, nil, size, perms)
}

func mapUserPages(root *mem.Pmap_t, uv uintptr, src []uint8, size int, perms mem.Pa_t) ([]Vma_t, errno.Err_t) {
	npages := util.Roundup(size, PGSIZE) / PGSIZE
	base := uintptr(util.Rounddown(int(uv), PGSIZE))
	for i := 0; i < npages; i++ {
		p := pmm.AllocPage()
		if p == 0 {
			return nil, errno.ENOMEM
		}
		pg := mem.Dmap(mem.Pa_t(p))
		bpg := mem.Pg2bytes(pg)
		for j := range bpg {
			bpg[j] = 0
		}
		if src != nil {
			off := i * PGSIZE
			if off < len(src) {
				copy(bpg[:], src[off:])
			}
		}
		if err := Map(root, base+uintptr(i*PGSIZE), mem.Pa_t(p), perms); err != 0 {
			pmm.FreePage(p)
			return nil, err
		}
	}
	return []Vma_t{{Start: base, Pages: npages, Perms: perms}}, 0
}

// mapFixedPages maps an already-owned, physically contiguous range
// (a DMA buffer, for instance) into root without touching pmm; the
// caller, not the Vma_t walk, owns freeing these pages.
func mapFixedPages(root *mem.Pmap_t, uv uintptr, phys mem.Pa_t, size int, perms mem.Pa_t) ([]Vma_t, errno.Err_t) {
	npages := util.Roundup(size, PGSIZE) / PGSIZE
	base := uintptr(util.Rounddown(int(uv), PGSIZE))
	for i := 0; i < npages; i++ {
		p := phys + mem.Pa_t(i*PGSIZE)
		if err := Map(root, base+uintptr(i*PGSIZE), p, perms); err != 0 {
			return nil, err
		}
	}
	return nil, 0
}

/// SwitchRoot writes satp with Sv39 mode and root's physical page
/// number and flushes the TLB. Backed by switch_riscv64.s.
func SwitchRoot(rootPa mem.Pa_t)

/// Uvmfree frees every leaf page recorded in as.Vmas, then the
/// interior page-table nodes, then the root itself.
func (as *Vm_t) Uvmfree() {
	as.Lock()
	defer as.Unlock()
	for _, v := range as.Vmas {
		for i := 0; i < v.Pages; i++ {
			va := v.Start + uintptr(i*PGSIZE)
			if pa := Unmap(as.Root, va); pa != 0 {
				pmm.FreePage(uintptr(pa))
			}
		}
	}
	as.Vmas = nil
	FreeRootTree(as.Root, as.P_root)
}

/// AddVma records a newly mapped range so Uvmfree can release it
/// later.
func (as *Vm_t) AddVma(v Vma_t) {
	as.Lock()
	defer as.Unlock()
	as.Vmas = append(as.Vmas, v)
}

/// Userdmap8r maps the page containing va in as's root for reading and
/// returns the slice from va's offset to the end of that page. It
/// returns EFAULT unless the leaf is valid and user-accessible (PTE_U).
func (as *Vm_t) Userdmap8r(va uintptr) ([]uint8, errno.Err_t) {
	pte, err := walkLeaf(as.Root, va&^mem.PGOFFSET)
	if err != 0 || pte == nil || *pte&(mem.PTE_V|mem.PTE_U) != mem.PTE_V|mem.PTE_U {
		return nil, errno.EFAULT
	}
	off := va & uintptr(mem.PGOFFSET)
	bpg := mem.Pg2bytes(mem.Dmap(*pte &^ mem.PGOFFSET))
	return bpg[off:], 0
}

func (as *Vm_t) userdmap8w(va uintptr) ([]uint8, errno.Err_t) {
	pte, err := walkLeaf(as.Root, va&^mem.PGOFFSET)
	if err != 0 || pte == nil || *pte&(mem.PTE_V|mem.PTE_U) != mem.PTE_V|mem.PTE_U {
		return nil, errno.EFAULT
	}
	off := va & uintptr(mem.PGOFFSET)
	bpg := mem.Pg2bytes(mem.Dmap(*pte &^ mem.PGOFFSET))
	return bpg[off:], 0
}

/// Userreadn reads n (<=8) bytes at user address va and returns them
/// as a little-endian integer.
func (as *Vm_t) Userreadn(va uintptr, n int) (int, errno.Err_t) {
	if n > 8 {
		panic("large n")
	}
	var ret int
	for i := 0; i < n; {
		src, err := as.Userdmap8r(va + uintptr(i))
		if err != 0 {
			return 0, err
		}
		l := n - i
		if len(src) < l {
			l = len(src)
		}
		ret |= util.Readn(src, l, 0) << (8 * uint(i))
		i += l
	}
	return ret, 0
}

/// Userwriten writes the low n (<=8) bytes of val to user address va.
func (as *Vm_t) Userwriten(va uintptr, n, val int) errno.Err_t {
	if n > 8 {
		panic("large n")
	}
	for i := 0; i < n; {
		dst, err := as.userdmap8w(va + uintptr(i))
		if err != 0 {
			return err
		}
		l := n - i
		if len(dst) < l {
			l = len(dst)
		}
		util.Writen(dst, l, 0, val>>(8*uint(i)))
		i += l
	}
	return 0
}

/// Userstr copies a NUL-terminated string from user memory, up to
/// lenmax bytes.
func (as *Vm_t) Userstr(uva uintptr, lenmax int) (ustr.Ustr, errno.Err_t) {
	if lenmax < 0 {
		return nil, 0
	}
	s := ustr.MkUstr()
	i := uintptr(0)
	for {
		str, err := as.Userdmap8r(uva + i)
		if err != 0 {
			return nil, err
		}
		for j, c := range str {
			if c == 0 {
				return append(s, str[:j]...), 0
			}
		}
		s = append(s, str...)
		i += uintptr(len(str))
		if len(s) >= lenmax {
			return nil, errno.EINVAL
		}
	}
}

/// K2user copies src into user memory at uva, page by page.
func (as *Vm_t) K2user(src []uint8, uva uintptr) errno.Err_t {
	cnt := 0
	for cnt != len(src) {
		dst, err := as.userdmap8w(uva + uintptr(cnt))
		if err != 0 {
			return err
		}
		n := copy(dst, src[cnt:])
		cnt += n
	}
	return 0
}

/// User2k copies len(dst) bytes from user memory at uva into dst.
func (as *Vm_t) User2k(dst []uint8, uva uintptr) errno.Err_t {
	cnt := 0
	for cnt != len(dst) {
		src, err := as.Userdmap8r(uva + uintptr(cnt))
		if err != 0 {
			return err
		}
		n := copy(dst[cnt:], src)
		cnt += n
	}
	return 0
}
