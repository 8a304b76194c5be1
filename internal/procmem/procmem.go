// Package procmem gives probe handlers access to a live target process
// through /proc/<pid>/mem.
package procmem

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shirou/gopsutil/v3/process"
)

// Process is the memory of one target process.
type Process struct {
	pid  int32
	name string
	exe  string
	file *os.File
}

// Open checks that pid is a live process and opens its memory for reading
// and writing. Writing requires the same privileges as ptrace attach.
func Open(pid int32) (*Process, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("procmem: pid %d: %w", pid, err)
	}
	name, err := proc.Name()
	if err != nil {
		return nil, fmt.Errorf("procmem: pid %d name: %w", pid, err)
	}
	// exe is informational only; some kernels hide it for other users
	exe, _ := proc.Exe()

	f, err := os.OpenFile("/proc/"+strconv.Itoa(int(pid))+"/mem", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("procmem: pid %d mem: %w", pid, err)
	}
	return &Process{pid: pid, name: name, exe: exe, file: f}, nil
}

func (p *Process) PID() int32 {
	return p.pid
}

func (p *Process) Name() string {
	return p.name
}

func (p *Process) Exe() string {
	return p.exe
}

func (p *Process) ReadAt(b []byte, off int64) (int, error) {
	return p.file.ReadAt(b, off)
}

func (p *Process) WriteAt(b []byte, off int64) (int, error) {
	return p.file.WriteAt(b, off)
}

func (p *Process) Close() error {
	return p.file.Close()
}
