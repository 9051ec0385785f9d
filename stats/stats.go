// Package stats provides lightweight, normally-compiled-out counters
// and cycle-time accumulators used to instrument the virtio and ext2
// hot paths without a full profiler.
package stats

import "reflect"
import "strconv"
import "strings"
import "sync/atomic"
import "unsafe"

const Stats = false
const Timing = false

var Nirqs [100]int
var Irqs int

/// rdcycle reads the RISC-V cycle CSR; defined in stats_riscv64.s.
func rdcycle() uint64

/// Rdtsc returns the current cycle count when timing is enabled, else 0.
func Rdtsc() uint64 {
	if Stats || Timing {
		return rdcycle()
	}
	return 0
}

/// Counter_t is a statistical counter.
type Counter_t int64

/// Cycles_t holds a cycle count.
type Cycles_t int64

/// Inc increments the counter.
func (c *Counter_t) Inc() {
	if Stats {
		n := (*int64)(unsafe.Pointer(c))
		atomic.AddInt64(n, 1)
	}
}

/// Add adds elapsed cycles to the counter.
func (c *Cycles_t) Add(m uint64) {
	if Timing {
		n := (*int64)(unsafe.Pointer(c))
		atomic.AddInt64(n, int64(Rdtsc()-m))
	}
}

/// Stats2String converts a struct of counters to a printable string.
func Stats2String(st interface{}) string {
	if !Stats {
		return ""
	}
	v := reflect.ValueOf(st)
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		if strings.HasSuffix(t, "Counter_t") {
			n := v.Field(i).Interface().(Counter_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}
		if strings.HasSuffix(t, "Cycles_t") {
			n := v.Field(i).Interface().(Cycles_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}

	}
	return s + "\n"
}
