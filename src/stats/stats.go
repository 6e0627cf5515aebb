// Package stats holds the scheduler's running counters and exports them as
// a pprof profile on the D_PROF device.
package stats

import "reflect"
import "sync/atomic"
import "strconv"
import "strings"
import "unsafe"

import "github.com/google/pprof/profile"

// Stats is on, unlike the teacher's production default: the D_STAT and
// D_PROF devices exist specifically to expose Sched's counters, so gating
// them off would leave both devices permanently empty.
const Stats = true
const Timing = false

/// Rdcycle reads the RISC-V `rdcycle` CSR. Left uninstalled: Timing is off
/// and nothing in Sched_t uses Cycles_t yet, so no boot wiring calls it.
var Rdcycle func() uint64

func rdcycle() uint64 {
	if !Timing || Rdcycle == nil {
		return 0
	}
	return Rdcycle()
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
		atomic.AddInt64(n, int64(rdcycle()-m))
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

/// Sched_t holds the scheduler-wide counters the D_PROF device exports.
type Sched_t struct {
	Scheds Counter_t /// number of times a running process was suspended back to the scheduler
	Forks  Counter_t
	Execs  Counter_t
	Exits  Counter_t
	Yields Counter_t
}

/// Sched is the kernel's single scheduler-counter instance.
var Sched Sched_t

/// ExportProfile renders Sched as a pprof profile.Profile: one sample per
/// counter, with sample type "events" in unit "count". D_PROF's Read
/// serializes this with profile.Write.
func ExportProfile() *profile.Profile {
	valType := &profile.ValueType{Type: "events", Unit: "count"}
	p := &profile.Profile{
		SampleType: []*profile.ValueType{valType},
		PeriodType: valType,
		Period:     1,
	}
	fields := []struct {
		name string
		val  Counter_t
	}{
		{"schedule", Sched.Scheds},
		{"fork", Sched.Forks},
		{"exec", Sched.Execs},
		{"exit", Sched.Exits},
		{"yield", Sched.Yields},
	}
	for i, f := range fields {
		fn := &profile.Function{ID: uint64(i + 1), Name: f.name}
		loc := &profile.Location{ID: uint64(i + 1), Line: []profile.Line{{Function: fn}}}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{int64(f.val)},
		})
	}
	return p
}
