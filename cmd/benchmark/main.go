package main

import (
	"context"
	"flag"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	autotrace "github.com/lightstep/lightstep-autotrace-go"
	"github.com/lightstep/lightstep-autotrace-go/instrumentation"
	"github.com/lightstep/lightstep-autotrace-go/instrumentation/hyper"
	"github.com/lightstep/lightstep-autotrace-go/offsets"
	"github.com/lightstep/lightstep-autotrace-go/probe"
	"github.com/lightstep/lightstep-autotrace-go/probe/probetest"
	"go.uber.org/zap"
)

const benchVersion = "hyper@bench"

var (
	concurrent    = flag.Int("concurrent", runtime.NumCPU(), "simulated tasks firing probes at once")
	repeat        = flag.Int("repeat", 100000, "requests per task")
	maxConcurrent = flag.Int("max-concurrent", autotrace.DefaultMaxConcurrent, "pending request table capacity")
	outputBuffer  = flag.Int("output-buffer", autotrace.DefaultOutputBuffer, "records buffered between probes and the session")
	verbose       = flag.Bool("verbose", false, "log every session event")
)

func fatal(x ...interface{}) {
	panic(fmt.Sprintln(x...))
}

func layout() *offsets.Table {
	t := &offsets.Table{}
	for id, off := range map[offsets.ID]uint64{
		hyper.RequestMethodPtr:      0,
		hyper.RequestMethodLen:      8,
		hyper.RequestURI:            16,
		hyper.RequestTraceparentPtr: 24,
		hyper.RequestTraceparentLen: 32,
		hyper.URIPathPtr:            0,
		hyper.URIPathLen:            8,
		hyper.ResponseStatus:        0,
	} {
		t.Set(benchVersion, id, off)
	}
	return t
}

// task is one simulated async task serving requests on its own stack.
type task struct {
	mem    *probetest.Memory
	probes map[string]instrumentation.Probe
	regs   probe.Regs
	req    uint64
	resp   uint64
}

func newTask(mem *probetest.Memory, probes map[string]instrumentation.Probe, id int) *task {
	t := &task{mem: mem, probes: probes}
	t.regs = probe.Regs{
		PID:    1,
		TID:    uint32(id%runtime.NumCPU() + 1),
		TaskID: uint64(id + 1),
		SP:     mem.Alloc(64),
	}

	t.req = mem.Alloc(40)
	method, path := "GET", fmt.Sprintf("/bench/%d", id)
	mem.PutUint64(t.req, mem.String(method))
	mem.PutUint64(t.req+8, uint64(len(method)))
	uri := mem.Alloc(16)
	mem.PutUint64(uri, mem.String(path))
	mem.PutUint64(uri+8, uint64(len(path)))
	mem.PutUint64(t.req+16, uri)

	t.resp = mem.Alloc(8)
	mem.PutUint16(t.resp, 200)
	mem.PutUint64(t.regs.SP+probe.WordSize, t.req)
	return t
}

func (t *task) fire(symbol string, ret bool, args ...uint64) {
	p, ok := t.probes[symbol]
	if !ok {
		fatal("no probe for", symbol)
	}
	regs := t.regs
	copy(regs.Args[:], args)
	if ret {
		p.Return(&regs)
	} else {
		p.Entry(&regs)
	}
}

func (t *task) serve() {
	t.fire(hyper.SymServeConnection, false, t.req)
	t.fire(hyper.SymRequestHeaders, false, t.req)
	t.fire(hyper.SymRequestMethod, false, t.req)
	t.fire(hyper.SymRequestURI, false, t.req)
	t.fire(hyper.SymWriteHead, false, t.req, t.resp)
	t.fire(hyper.SymServeConnection, true, t.req)
}

func main() {
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			fatal("could not create logger:", err)
		}
	}

	var recorded atomic.Int64
	var dropped atomic.Int64
	mem := probetest.NewMemory()
	session, err := autotrace.NewSession(mem,
		autotrace.WithResolver(layout()),
		autotrace.WithLibraryVersion(benchVersion),
		autotrace.WithMaxConcurrent(*maxConcurrent),
		autotrace.WithOutputBuffer(*outputBuffer),
		autotrace.WithLogger(logger),
		autotrace.WithRecorder(autotrace.SpanRecorderFunc(func(autotrace.RawSpan) {
			recorded.Add(1)
		})),
		autotrace.WithOnEvent(func(event autotrace.Event) {
			if _, ok := event.(autotrace.EventSpanDropped); ok {
				dropped.Add(1)
			}
			if *verbose {
				autotrace.NewOnEventLogger(logger)(event)
			}
		}),
	)
	if err != nil {
		fatal("could not create session:", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- session.Run(context.Background())
	}()

	probes := session.Probes()
	tasks := make([]*task, *concurrent)
	for i := range tasks {
		tasks[i] = newTask(mem, probes, i)
	}

	start := &sync.WaitGroup{}
	finish := &sync.WaitGroup{}
	start.Add(len(tasks))
	finish.Add(len(tasks))
	begin := time.Now()
	for _, t := range tasks {
		go func(t *task) {
			defer finish.Done()
			start.Done()
			start.Wait()
			for i := 0; i < *repeat; i++ {
				t.serve()
			}
		}(t)
	}
	finish.Wait()
	elapsed := time.Since(begin)

	session.Close()
	<-done

	total := int64(*concurrent) * int64(*repeat)
	fmt.Printf("requests=%d elapsed=%s per_request=%s recorded=%d dropped=%d\n",
		total, elapsed, elapsed/time.Duration(total), recorded.Load(), dropped.Load())
}
