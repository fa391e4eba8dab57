// Package shm provides the shared-memory ring buffer substrate: region
// layout and initialization, the topic directory, and the byte-level
// structures shared by unrelated processes attached to the same region.
//
// The publish and subscribe algorithms live in swmr.go, mwmr.go and
// subscriber.go; this file owns the region's on-disk/on-mmap layout.
package shm

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Magic and format version identifying a region written by this package.
// A region whose header doesn't match is treated as foreign (§3, §6).
const (
	Magic         uint32 = 0x5553524C // "USRL"
	FormatVersion uint32 = 1

	maxTopicName = 64
	alignment    = 64 // cache-line alignment for header-level structures
)

// RingType discriminates the publish discipline a topic was created with.
type RingType uint32

const (
	SWMR RingType = iota
	MWMR
)

func (t RingType) String() string {
	if t == MWMR {
		return "MWMR"
	}
	return "SWMR"
}

// regionHeader is the first thing written at region base. Layout must match
// §3.1 byte-for-byte: unrelated processes cast a raw mmap'd byte slice onto
// this struct, so field order and width are load-bearing, not cosmetic.
type regionHeader struct {
	Magic            uint32
	Version          uint32
	Size             uint64
	TopicTableOffset uint64
	TopicCount       uint32
	_pad             uint32
}

// topicEntry is one row of the topic table (§3.2).
type topicEntry struct {
	Name           [maxTopicName]byte
	RingDescOffset uint64
	RingType       uint32
	SlotCount      uint32
	SlotSize       uint32
	_pad           uint32
}

// ringDesc is the per-topic ring descriptor (§3.3). WHead is the only
// mutable field after init; it's advanced exclusively via atomic fetch-add.
type ringDesc struct {
	SlotCount  uint32
	SlotSize   uint32
	BaseOffset uint64
	WHead      uint64
	_pad       [40]byte
}

const (
	regionHeaderSize = unsafe.Sizeof(regionHeader{})
	topicEntrySize   = unsafe.Sizeof(topicEntry{})
	ringDescSize     = unsafe.Sizeof(ringDesc{})
)

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}

func nextPowerOfTwo(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return v + 1
}

// TopicConfig describes one topic to create at region init time.
type TopicConfig struct {
	Name        string
	Type        RingType
	SlotCount   uint32 // rounded up to the next power of two
	PayloadSize uint32 // max payload bytes per message
}

// layout is the set of offsets computed once at init/attach time and reused
// by every operation that needs to find a topic's ring or slots.
type layout struct {
	header *regionHeader
	base   []byte
}

func newLayout(base []byte) (*layout, error) {
	if len(base) < int(regionHeaderSize) {
		return nil, fmt.Errorf("shm: region too small to hold a header")
	}
	hdr := (*regionHeader)(unsafe.Pointer(&base[0]))
	if hdr.Magic != Magic {
		return nil, fmt.Errorf("shm: %w (magic=%#x)", ErrForeignRegion, hdr.Magic)
	}
	if hdr.Version != FormatVersion {
		return nil, fmt.Errorf("shm: %w (version=%d, want %d)", ErrForeignRegion, hdr.Version, FormatVersion)
	}
	return &layout{header: hdr, base: base}, nil
}

// lookup performs the bounded linear scan described in §4.2. Topic counts
// are small (hundreds at most), so O(N) with a fixed-width name compare is
// the whole algorithm; the directory never mutates after init, so a
// returned descriptor is stable for the region's lifetime.
func (l *layout) lookup(name string) (*topicEntry, error) {
	if len(name) == 0 || len(name) >= maxTopicName {
		return nil, ErrInvalid
	}
	n := int(l.header.TopicCount)
	off := l.header.TopicTableOffset
	for i := 0; i < n; i++ {
		p := (*topicEntry)(unsafe.Pointer(&l.base[off+uint64(i)*uint64(topicEntrySize)]))
		if cstr(p.Name[:]) == name {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

// topics returns a copy of every entry in the topic table, used by
// Region.Topics to enumerate a region without exposing its internal
// pointer layout.
func (l *layout) topics() []topicEntry {
	n := int(l.header.TopicCount)
	off := l.header.TopicTableOffset
	out := make([]topicEntry, 0, n)
	for i := 0; i < n; i++ {
		p := (*topicEntry)(unsafe.Pointer(&l.base[off+uint64(i)*uint64(topicEntrySize)]))
		out = append(out, *p)
	}
	return out
}

func cstr(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func (l *layout) ringDesc(t *topicEntry) *ringDesc {
	return (*ringDesc)(unsafe.Pointer(&l.base[t.RingDescOffset]))
}

func (l *layout) slotArray(d *ringDesc) []byte {
	start := d.BaseOffset
	end := start + uint64(d.SlotCount)*uint64(d.SlotSize)
	return l.base[start:end]
}

func loadWHead(d *ringDesc) uint64 {
	return atomic.LoadUint64(&d.WHead)
}

// Init builds a fresh, fully-formed region at name: it unlinks any prior
// object of the same name, sizes and zeroes the backing object, and writes
// header, topic table, ring descriptors and zeroed slot headers (§4.1).
func Init(name string, size uint64, topics []TopicConfig) error {
	if name == "" || size < 4096 || len(topics) == 0 {
		return ErrInvalid
	}

	r, err := createRegion(name, size)
	if err != nil {
		return err
	}
	defer r.Close()

	base := r.Bytes()
	for i := range base {
		base[i] = 0
	}

	hdr := (*regionHeader)(unsafe.Pointer(&base[0]))
	hdr.Magic = Magic
	hdr.Version = FormatVersion
	hdr.Size = size
	hdr.TopicTableOffset = alignUp(uint64(regionHeaderSize), alignment)
	hdr.TopicCount = uint32(len(topics))

	cursor := hdr.TopicTableOffset + uint64(len(topics))*uint64(topicEntrySize)
	nextDescOff := alignUp(cursor, alignment)

	for i, cfg := range topics {
		if cfg.Name == "" || len(cfg.Name) >= maxTopicName {
			return fmt.Errorf("shm: %w: topic name %q", ErrInvalid, cfg.Name)
		}
		slotCount := nextPowerOfTwo(cfg.SlotCount)
		slotSize := uint32(alignUp(uint64(slotHeaderSize)+uint64(cfg.PayloadSize), 8))

		entryOff := hdr.TopicTableOffset + uint64(i)*uint64(topicEntrySize)
		entry := (*topicEntry)(unsafe.Pointer(&base[entryOff]))
		copy(entry.Name[:], cfg.Name)
		entry.RingType = uint32(cfg.Type)
		entry.SlotCount = slotCount
		entry.SlotSize = slotSize

		descOff := alignUp(nextDescOff, alignment)
		entry.RingDescOffset = descOff

		desc := (*ringDesc)(unsafe.Pointer(&base[descOff]))
		desc.SlotCount = slotCount
		desc.SlotSize = slotSize

		slotsOff := alignUp(descOff+uint64(ringDescSize), alignment)
		desc.BaseOffset = slotsOff
		atomic.StoreUint64(&desc.WHead, 0)

		slotsBytes := uint64(slotCount) * uint64(slotSize)
		if slotsOff+slotsBytes > size {
			return fmt.Errorf("shm: %w: topic %q needs %d bytes past offset %d in a %d byte region",
				ErrOutOfSpace, cfg.Name, slotsBytes, slotsOff, size)
		}

		slots := base[slotsOff : slotsOff+slotsBytes]
		for j := range slots {
			slots[j] = 0
		}
		for s := uint32(0); s < slotCount; s++ {
			sh := (*SlotHeader)(unsafe.Pointer(&slots[uint64(s)*uint64(slotSize)]))
			atomic.StoreUint64(&sh.Seq, 0)
			sh.TimestampNs = 0
			sh.PayloadLen = 0
		}

		nextDescOff = slotsOff + slotsBytes
	}

	return nil
}

// Region is an attached mapping of a shared-memory object created by Init,
// opened by name via Map or Open. Init itself unmaps the region it builds
// and returns no Region.
type Region struct {
	mapping mapping
	layout  *layout
}

// Map attaches to an existing region by name. size must be large enough to
// cover the whole region; callers that don't know the exact size up front
// should use Open instead, which probes the header first.
func Map(name string, size uint64) (*Region, error) {
	m, err := openRegion(name, size)
	if err != nil {
		return nil, err
	}
	l, err := newLayout(m.Bytes())
	if err != nil {
		m.Close()
		return nil, err
	}
	return &Region{mapping: m, layout: l}, nil
}

// ProbeSize maps just the region header to discover its true size, then
// unmaps the probe. This resolves the spec's open question about
// subscriber attach size (§9a): rather than hard-coding a map size, Open
// reads the region header's Size field first and then maps exactly that.
func ProbeSize(name string) (uint64, error) {
	m, err := openRegion(name, uint64(regionHeaderSize))
	if err != nil {
		return 0, err
	}
	defer m.Close()
	hdr := (*regionHeader)(unsafe.Pointer(&m.Bytes()[0]))
	if hdr.Magic != Magic {
		return 0, ErrForeignRegion
	}
	return hdr.Size, nil
}

// Open probes the region's real size and then maps the whole thing. This is
// the attach path publishers and subscribers should use in preference to
// Map with a guessed size.
func Open(name string) (*Region, error) {
	size, err := ProbeSize(name)
	if err != nil {
		return nil, err
	}
	return Map(name, size)
}

// Close unmaps this process's view of the region. It does not destroy or
// unlink the underlying object; the region is owned collectively by every
// attached process (§9 Ownership) and persists until explicitly unlinked.
func (r *Region) Close() error {
	return r.mapping.Close()
}

// Unlink removes the named shared-memory object. Any process still
// attached keeps its existing mapping valid until it closes; new attaches
// after Unlink fail.
func Unlink(name string) error {
	return unlinkRegion(name)
}

// Lookup resolves a topic by name, returning its ring type and slot layout
// so callers can build a publisher or subscriber handle.
func (r *Region) Lookup(name string) (RingType, uint32, uint32, error) {
	t, err := r.layout.lookup(name)
	if err != nil {
		return 0, 0, 0, err
	}
	return RingType(t.RingType), t.SlotCount, t.SlotSize, nil
}

// Topics lists every topic name in the region, in table order.
func (r *Region) Topics() []string {
	entries := r.layout.topics()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = cstr(e.Name[:])
	}
	return out
}

// byteOrderSanityCheck exists so the package fails loudly, at import time,
// if it's ever built for a big-endian target: the region format is
// host-endian only (§6), and this project never writes a region on one
// endianness and reads it on another.
var _ = func() byte {
	var probe uint16 = 1
	b := (*[2]byte)(unsafe.Pointer(&probe))
	if binary.LittleEndian.Uint16(b[:]) != 1 {
		panic("shm: big-endian hosts are not supported by this region format")
	}
	return 0
}()
