//go:build linux || darwin

package shm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// shmDir mirrors the teacher feeder's /dev/shm convention: a POSIX shared
// memory object backed by tmpfs, named by the caller-supplied region name.
const shmDir = "/dev/shm/"

func shmPath(name string) string {
	return shmDir + name
}

// mapping is the per-process handle on an mmap'd region: just the mapped
// byte slice, since the backing file descriptor is closed immediately
// after mmap, per usrl_core_map.
type mapping struct {
	data []byte
}

func (m mapping) Bytes() []byte { return m.data }

func (m mapping) Close() error {
	if m.data == nil {
		return nil
	}
	return unix.Munmap(m.data)
}

// createRegion unlinks any prior object of the same name, creates it
// exclusively, sizes it, and maps it read/write (§4.1 steps 1-2).
func createRegion(name string, size uint64) (mapping, error) {
	path := shmPath(name)
	_ = os.Remove(path)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
	if err != nil {
		return mapping{}, fmt.Errorf("shm: create %s: %w", name, err)
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		return mapping{}, fmt.Errorf("shm: size %s: %w", name, err)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return mapping{}, fmt.Errorf("shm: mmap %s: %w", name, err)
	}
	return mapping{data: data}, nil
}

// openRegion attaches to an existing object by name, mapping exactly size
// bytes of it.
func openRegion(name string, size uint64) (mapping, error) {
	path := shmPath(name)
	f, err := os.OpenFile(path, os.O_RDWR, 0666)
	if err != nil {
		return mapping{}, fmt.Errorf("shm: open %s: %w", name, err)
	}
	defer f.Close()

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return mapping{}, fmt.Errorf("shm: mmap %s: %w", name, err)
	}
	return mapping{data: data}, nil
}

func unlinkRegion(name string) error {
	if err := os.Remove(shmPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("shm: unlink %s: %w", name, err)
	}
	return nil
}
