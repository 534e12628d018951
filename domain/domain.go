// Copyright 2016 Aleksandr Demakin. All rights reserved.

// Package domain implements a shared memory communication domain.
// N processes, each having its own rank, exchange byte streams through per-rank ring buffers
// and synchronize with a reusable barrier. All the state lives in a single file-backed memory region,
// mapped into every participant. There is no broker process.
//
// The creator calls Setup, and passes Name() and a rank to the other processes,
// which call Connect. Every rank reads its own ring buffer only, while any rank can write to it.
package domain

import (
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/nxgtw/go-shmdomain/internal/allocator"
	"github.com/nxgtw/go-shmdomain/mmf"
	"github.com/nxgtw/go-shmdomain/shm"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Domain is a local handle of a shared communication domain.
// It can be used from multiple goroutines.
type Domain struct {
	creator bool
	rank    int
	name    string
	layout  Layout
	region  *mmf.MemoryRegion
	hdr     *header
	slots   []slotRef
	extra   []byte
	log     *zap.Logger
	metrics *metrics

	closeOnce sync.Once
	closed    int32
}

var (
	pidOnce sync.Once
	pid     uint32
)

func currentPid() uint32 {
	pidOnce.Do(func() {
		pid = uint32(os.Getpid())
	})
	return pid
}

// Setup creates a new domain and returns its handle with rank 0.
//	capacity - size of every ring buffer in bytes.
//	processes - number of participants.
//	extra - size of the extra space, which is not used by the domain itself.
func Setup(capacity, processes, extra int, opts ...Option) (result *Domain, err error) {
	layout, err := NewLayout(capacity, processes, extra)
	if err != nil {
		return nil, err
	}
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	m, err := newMetrics(o.registerer)
	if err != nil {
		return nil, err
	}
	obj, err := shm.CreateMemoryObject(o.dir, o.prefix, o.perm)
	if err != nil {
		return nil, errors.Wrap(err, "domain: failed to create shm object")
	}
	var region *mmf.MemoryRegion
	defer func() {
		obj.Close()
		if err != nil {
			if region != nil {
				region.Close()
			}
			shm.DestroyMemoryObject(obj.Name())
		}
	}()
	if err = obj.Truncate(int64(layout.Size)); err != nil {
		return nil, errors.Wrap(err, "domain: failed to resize shm object")
	}
	if region, err = mmf.NewMemoryRegion(obj, mmf.MEM_READWRITE, 0, layout.Size); err != nil {
		return nil, errors.Wrap(err, "domain: failed to map shm object")
	}
	result = newDomain(region, layout, obj.Name(), 0, o.logger, m)
	result.creator = true
	if err = result.init(o); err != nil {
		return nil, err
	}
	result.log.Debug("domain created",
		zap.String("name", result.name),
		zap.Int("processes", processes),
		zap.Int("capacity", capacity),
		zap.Int("extra", extra),
		zap.Int("size", layout.Size))
	return result, nil
}

// init initializes all the primitives. On failure, already initialized ones are destroyed.
// The magic value is written last, so that connecting processes never see a half-initialized domain.
func (d *Domain) init(o *options) error {
	h := d.hdr
	h.processes = uint32(d.layout.Processes)
	h.capacity = uint64(d.layout.Capacity)
	h.extraSize = uint64(d.layout.ExtraSize)
	h.extraOffset = int64(d.layout.ExtraOffset)
	h.barrierCount = 0
	h.barrierRound = 0
	atomic.StoreUint32(&h.terminating, 0)
	if err := h.mutex.Init(o.robust, o.mask); err != nil {
		return errors.Wrap(err, "domain: failed to init header mutex")
	}
	if err := h.barrierCond.Init(); err != nil {
		h.mutex.Destroy()
		return errors.Wrap(err, "domain: failed to init barrier cond")
	}
	for i, ref := range d.slots {
		if err := ref.init(o); err != nil {
			for _, prev := range d.slots[:i] {
				prev.destroy()
			}
			h.barrierCond.Destroy()
			h.mutex.Destroy()
			return errors.Wrapf(err, "domain: failed to init slot %d", i)
		}
	}
	h.version = headerVersion
	atomic.StoreUint32(&h.magic, headerMagic)
	return nil
}

// Connect attaches to an existing domain with the given name.
// It fails with ErrTerminating for a domain, which has been shut down.
func Connect(name string, rank int, opts ...Option) (result *Domain, err error) {
	o, err := buildOptions(opts)
	if err != nil {
		return nil, err
	}
	m, err := newMetrics(o.registerer)
	if err != nil {
		return nil, err
	}
	obj, err := shm.OpenMemoryObject(name)
	if err != nil {
		return nil, errors.Wrap(err, "domain: failed to open shm object")
	}
	defer obj.Close()
	layout, err := readLayout(obj, rank)
	if err != nil {
		return nil, err
	}
	if obj.Size() < int64(layout.Size) {
		return nil, errors.Wrap(ErrBadHeader, "shm object is too small")
	}
	region, err := mmf.NewMemoryRegion(obj, mmf.MEM_READWRITE, 0, layout.Size)
	if err != nil {
		return nil, errors.Wrap(err, "domain: failed to map shm object")
	}
	result = newDomain(region, layout, name, rank, o.logger, m)
	if result.hdr.isTerminating() {
		region.Close()
		return nil, ErrTerminating
	}
	result.log.Debug("domain connected", zap.String("name", name), zap.Int("rank", rank))
	return result, nil
}

// readLayout reads the header prefix of the object and computes the domain layout.
func readLayout(obj io.ReaderAt, rank int) (Layout, error) {
	var h header
	raw, err := allocator.ObjectData(&h)
	if err != nil {
		return Layout{}, err
	}
	if _, err = obj.ReadAt(raw, 0); err != nil {
		if err == io.EOF {
			return Layout{}, errors.Wrap(ErrBadHeader, "shm object is too small")
		}
		return Layout{}, errors.Wrap(err, "domain: failed to read header")
	}
	if h.magic != headerMagic || h.version != headerVersion {
		return Layout{}, ErrBadHeader
	}
	if h.terminating != 0 {
		return Layout{}, ErrTerminating
	}
	if rank < 0 || uint64(rank) >= uint64(h.processes) {
		return Layout{}, ErrInvalidRank
	}
	layout, err := NewLayout(int(h.capacity), int(h.processes), int(h.extraSize))
	if err != nil {
		return Layout{}, errors.Wrap(ErrBadHeader, err.Error())
	}
	if int64(layout.ExtraOffset) != h.extraOffset {
		return Layout{}, errors.Wrap(ErrBadHeader, "extra space offset mismatch")
	}
	return layout, nil
}

func newDomain(region *mmf.MemoryRegion, layout Layout, name string, rank int, logger *zap.Logger, m *metrics) *Domain {
	data := region.Data()
	base := allocator.ByteSliceData(data)
	d := &Domain{
		rank:    rank,
		name:    name,
		layout:  layout,
		region:  region,
		hdr:     newHeaderView(base),
		slots:   make([]slotRef, layout.Processes),
		log:     logger.With(zap.Int("rank", rank)),
		metrics: m,
	}
	for i := range d.slots {
		d.slots[i] = slotRef{
			slot: newSlotView(allocator.AdvancePointer(base, uintptr(layout.SlotOffset(i)))),
			data: data[layout.DataOffset(i) : layout.DataOffset(i)+layout.Capacity],
			hdr:  d.hdr,
		}
	}
	if layout.ExtraSize > 0 {
		d.extra = data[layout.ExtraOffset : layout.ExtraOffset+layout.ExtraSize]
	}
	return d
}

// Close releases the handle. The creator additionally destroys all shared primitives
// and removes the backing object. All other participants must have stopped using the domain
// before the creator closes it.
func (d *Domain) Close() error {
	var result error
	d.closeOnce.Do(func() {
		atomic.StoreInt32(&d.closed, 1)
		if d.creator {
			for i, ref := range d.slots {
				result = multierr.Append(result, errors.Wrapf(ref.destroy(), "slot %d", i))
			}
			result = multierr.Append(result, errors.Wrap(d.hdr.barrierCond.Destroy(), "barrier cond"))
			result = multierr.Append(result, errors.Wrap(d.hdr.mutex.Destroy(), "header mutex"))
		}
		d.hdr = nil
		d.slots = nil
		d.extra = nil
		result = multierr.Append(result, d.region.Close())
		if d.creator {
			result = multierr.Append(result, shm.DestroyMemoryObject(d.name))
		}
		d.log.Debug("domain closed", zap.Bool("creator", d.creator), zap.Error(result))
	})
	return result
}

func (d *Domain) isClosed() bool {
	return atomic.LoadInt32(&d.closed) != 0
}

// Creator returns true, if the handle was returned by Setup.
func (d *Domain) Creator() bool {
	return d.creator
}

// Rank returns the rank of this participant.
func (d *Domain) Rank() int {
	return d.rank
}

// Processes returns the number of participants.
func (d *Domain) Processes() int {
	return d.layout.Processes
}

// Capacity returns ring buffer size.
func (d *Domain) Capacity() int {
	return d.layout.Capacity
}

// Name returns the name, which is passed to Connect by other participants.
func (d *Domain) Name() string {
	return d.name
}

// Layout returns the layout of the shared region.
func (d *Domain) Layout() Layout {
	return d.layout
}

// ExtraSpace returns the extra space of the region. It is nil, if there is none.
// The domain does not synchronize access to it.
func (d *Domain) ExtraSpace() []byte {
	return d.extra
}

// Terminating returns true, if the domain has been shut down.
func (d *Domain) Terminating() bool {
	if d.isClosed() {
		return true
	}
	return d.hdr.isTerminating()
}

// Write sends all bytes of buf to the recipient. It blocks until all the bytes are copied
// into the recipient's ring buffer. Bytes of concurrent writes to the same recipient are never interleaved.
func (d *Domain) Write(recipient int, buf []byte) error {
	defer runtime.KeepAlive(d)
	if len(buf) == 0 {
		return nil
	}
	if d.isClosed() {
		return ErrClosed
	}
	if recipient < 0 || recipient >= d.layout.Processes {
		return d.metrics.observe("write", ErrInvalidRank)
	}
	if d.hdr.isTerminating() {
		return d.metrics.observe("write", ErrTerminating)
	}
	if err := d.slots[recipient].transfer(writerRole, buf); err != nil {
		d.logFailure("write", err, zap.Int("recipient", recipient))
		return d.metrics.observe("write", err)
	}
	d.metrics.bytesWritten.Add(float64(len(buf)))
	return nil
}

// Read fills buf with bytes from this participant's ring buffer. It blocks until len(buf) bytes are read.
// Bytes of one write may be split between several reads, and one read may return bytes of several writes.
func (d *Domain) Read(buf []byte) error {
	defer runtime.KeepAlive(d)
	if len(buf) == 0 {
		return nil
	}
	if d.isClosed() {
		return ErrClosed
	}
	if d.hdr.isTerminating() {
		return d.metrics.observe("read", ErrTerminating)
	}
	if err := d.slots[d.rank].transfer(readerRole, buf); err != nil {
		d.logFailure("read", err)
		return d.metrics.observe("read", err)
	}
	d.metrics.bytesRead.Add(float64(len(buf)))
	return nil
}

func (d *Domain) logFailure(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("op", op), zap.Error(err))
	switch errors.Cause(err) {
	case ErrTerminating:
		d.log.Debug("operation aborted by shutdown", fields...)
	case ErrInconsistent:
		d.log.Warn("domain state is inconsistent", fields...)
	default:
		d.log.Error("operation failed", fields...)
	}
}
