package shm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"code.hybscloud.com/iox"

	"github.com/danmuck/simlink/internal/logging"
	"github.com/danmuck/simlink/internal/observability"
	"github.com/danmuck/simlink/internal/protocol/session"
)

// Channel is one endpoint of a shared channel. Each side must be driven by
// a single goroutine; Close may be called from any goroutine. Close waits
// for an outstanding Reader to be released, so the goroutine holding one
// must release it before closing.
type Channel struct {
	cfg      Config
	path     string
	lockPath string
	file     *os.File
	lock     *os.File
	mem      []byte
	hdr      header
	out      slot
	in       slot
	capacity int

	// mu is held shared by every operation touching the mapping and
	// exclusively by Close while unmapping.
	mu     sync.RWMutex
	closed atomic.Bool
}

// Open creates or attaches to the segment described by cfg. It never blocks.
func Open(ctx context.Context, cfg Config) (*Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return open(cfg)
}

func open(cfg Config) (*Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Role == Creator {
		return create(cfg)
	}
	return attach(cfg)
}

// OpenWithRetry attaches, retrying while the creator has not appeared yet.
// Any other failure is returned immediately.
func OpenWithRetry(ctx context.Context, cfg Config, backoff session.BackoffConfig) (*Channel, error) {
	if cfg.Role != Attacher {
		return Open(ctx, cfg)
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 1; ; attempt++ {
		ch, err := open(cfg)
		if err == nil {
			return ch, nil
		}
		if !errors.Is(err, ErrSegmentNotFound) && !errors.Is(err, ErrSegmentNotReady) {
			return nil, err
		}
		delay := backoff.Delay(attempt, rng)
		logging.Debugf("shm.OpenWithRetry segment=%s attempt=%d delay=%s err=%v", cfg.Segment, attempt, delay, err)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("shm: attach %s after %d attempts: %w: %w", cfg.Segment, attempt, err, ctx.Err())
		case <-timer.C:
		}
	}
}

func create(cfg Config) (*Channel, error) {
	dir := cfg.dir()
	c := &Channel{
		cfg:      cfg,
		path:     filepath.Join(dir, cfg.Segment),
		lockPath: filepath.Join(dir, cfg.Lock),
		capacity: cfg.Capacity,
	}
	lock, err := lockFile(c.lockPath)
	if err != nil {
		return nil, err
	}
	c.lock = lock

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		_ = unlockFile(lock)
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrSegmentExists, c.path)
		}
		return nil, fmt.Errorf("shm: create %s: %w", c.path, err)
	}
	c.file = f
	cleanup := func() {
		_ = munmap(c.mem)
		_ = f.Close()
		_ = os.Remove(c.path)
		_ = unlockFile(lock)
	}

	size := SegmentSize(cfg.Capacity)
	if err := f.Truncate(int64(size)); err != nil {
		cleanup()
		return nil, fmt.Errorf("shm: size %s: %w", c.path, err)
	}
	mem, err := mmapFile(f, size)
	if err != nil {
		cleanup()
		return nil, err
	}
	c.mem = mem
	c.hdr = header{mem: mem}
	c.hdr.init(cfg.Capacity, cfg.Lock)
	c.out = newSlot(mem, c.hdr.slotA(), cfg.Capacity)
	c.in = newSlot(mem, c.hdr.slotB(), cfg.Capacity)
	c.out.setName(cfg.Outbound)
	c.in.setName(cfg.Inbound)

	atomic.StoreUint32(c.hdr.u32(offCreatorPID), uint32(os.Getpid()))
	atomic.StoreUint32(c.hdr.u32(offCreatorReady), 1)
	logging.Infof("shm.Channel.create segment=%s path=%s capacity=%d out=%s in=%s",
		cfg.Segment, c.path, cfg.Capacity, cfg.Outbound, cfg.Inbound)
	return c, nil
}

func attach(cfg Config) (*Channel, error) {
	path := filepath.Join(cfg.dir(), cfg.Segment)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSegmentNotFound, path)
		}
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("shm: stat %s: %w", path, err)
	}
	size := int(st.Size())
	if size < SegmentHeaderSize {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrSegmentNotReady, path, size)
	}
	mem, err := mmapFile(f, size)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	fail := func(err error) (*Channel, error) {
		_ = munmap(mem)
		_ = f.Close()
		return nil, err
	}

	hdr := header{mem: mem}
	if !hdr.creatorReady() {
		return fail(fmt.Errorf("%w: %s", ErrSegmentNotReady, path))
	}
	if hdr.closed() {
		return fail(fmt.Errorf("%w: %s", ErrClosed, path))
	}
	if err := hdr.validate(size); err != nil {
		return fail(err)
	}
	if got := hdr.lockName(); got != cfg.Lock {
		return fail(fmt.Errorf("%w: lock is %q, want %q", ErrNameMismatch, got, cfg.Lock))
	}

	capacity := int(hdr.capacity())
	a := newSlot(mem, hdr.slotA(), capacity)
	b := newSlot(mem, hdr.slotB(), capacity)
	c := &Channel{cfg: cfg, path: path, file: f, mem: mem, hdr: hdr, capacity: capacity}
	switch {
	case a.name() == cfg.Outbound && b.name() == cfg.Inbound:
		c.out, c.in = a, b
	case b.name() == cfg.Outbound && a.name() == cfg.Inbound:
		c.out, c.in = b, a
	default:
		return fail(fmt.Errorf("%w: segment has %q/%q, want out=%q in=%q",
			ErrNameMismatch, a.name(), b.name(), cfg.Outbound, cfg.Inbound))
	}
	if !atomic.CompareAndSwapUint32(hdr.u32(offAttacherReady), 0, 1) {
		return fail(fmt.Errorf("%w: %s", ErrAlreadyAttached, path))
	}
	atomic.StoreUint32(hdr.u32(offAttacherPID), uint32(os.Getpid()))
	logging.Infof("shm.Channel.attach segment=%s path=%s capacity=%d out=%s in=%s",
		cfg.Segment, path, capacity, cfg.Outbound, cfg.Inbound)
	return c, nil
}

func (c *Channel) Capacity() int   { return c.capacity }
func (c *Channel) Role() Role      { return c.cfg.Role }
func (c *Channel) Segment() string { return c.cfg.Segment }
func (c *Channel) Path() string    { return c.path }

// await blocks until *word == want. Pending data wins over a close when
// drain is set so a receiver still sees the peer's last message.
func (c *Channel) await(ctx context.Context, word *uint32, want uint32, drain bool) error {
	var bo iox.Backoff
	for {
		if c.closed.Load() {
			return ErrClosed
		}
		cur := atomic.LoadUint32(word)
		if cur == want && (drain || !c.hdr.closed()) {
			return nil
		}
		if c.hdr.closed() {
			return ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		waitWord(word, cur, &bo)
	}
}

// Writer is exclusive write access to the outbound slot.
type Writer struct {
	c    *Channel
	done bool
}

// SendBegin blocks until the peer consumed the previous outbound message.
func (c *Channel) SendBegin(ctx context.Context) (*Writer, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	start := time.Now()
	if err := c.await(ctx, c.out.state(), stateEmpty, false); err != nil {
		return nil, err
	}
	observability.RecordChannelWait(c.cfg.Segment, "send_begin", time.Since(start))
	return &Writer{c: c}, nil
}

// Commit copies payload into the slot and hands it to the peer.
func (w *Writer) Commit(payload []byte) error {
	if w.done {
		return ErrReleased
	}
	c := w.c
	if len(payload) > c.capacity {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrFrameTooLarge, len(payload), c.capacity)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed.Load() {
		return ErrClosed
	}
	w.done = true
	copy(c.out.data(), payload)
	atomic.StoreUint32(c.out.length(), uint32(len(payload)))
	atomic.AddUint64(c.out.sent(), 1)
	atomic.StoreUint32(c.out.state(), stateFull)
	wakeWord(c.out.state())
	observability.RecordChannelFrame(c.cfg.Segment, "send", len(payload))
	return nil
}

// Send is SendBegin followed by Commit.
func (c *Channel) Send(ctx context.Context, payload []byte) error {
	if len(payload) > c.capacity {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrFrameTooLarge, len(payload), c.capacity)
	}
	w, err := c.SendBegin(ctx)
	if err != nil {
		return err
	}
	return w.Commit(payload)
}

// Reader is a read-only view of one inbound message.
type Reader struct {
	c    *Channel
	view []byte
	done bool
}

// Bytes is valid until Release and must not be modified.
func (r *Reader) Bytes() []byte {
	return r.view
}

// Release hands the inbound slot back to the peer and lets a pending Close
// unmap the segment.
func (r *Reader) Release() error {
	if r.done {
		return ErrReleased
	}
	r.done = true
	c := r.c
	defer c.mu.RUnlock()
	n := len(r.view)
	r.view = nil
	if c.closed.Load() {
		return ErrClosed
	}
	atomic.AddUint64(c.in.recvd(), 1)
	atomic.StoreUint32(c.in.state(), stateEmpty)
	wakeWord(c.in.state())
	observability.RecordChannelFrame(c.cfg.Segment, "recv", n)
	return nil
}

// RecvBegin blocks until the peer has committed a message. The Reader
// keeps the mapping alive until Release.
func (c *Channel) RecvBegin(ctx context.Context) (*Reader, error) {
	c.mu.RLock()
	start := time.Now()
	if err := c.await(ctx, c.in.state(), stateFull, true); err != nil {
		c.mu.RUnlock()
		return nil, err
	}
	observability.RecordChannelWait(c.cfg.Segment, "recv_begin", time.Since(start))
	r, err := c.reader()
	if err != nil {
		c.mu.RUnlock()
		return nil, err
	}
	return r, nil
}

func (c *Channel) reader() (*Reader, error) {
	n := int(atomic.LoadUint32(c.in.length()))
	if n > c.capacity {
		return nil, fmt.Errorf("%w: peer wrote %d bytes into capacity %d", ErrBadSegment, n, c.capacity)
	}
	return &Reader{c: c, view: c.in.data()[:n:n]}, nil
}

// Recv copies the next inbound message out and releases the slot.
func (c *Channel) Recv(ctx context.Context) ([]byte, error) {
	c.mu.RLock()
	start := time.Now()
	if err := c.await(ctx, c.in.state(), stateFull, true); err != nil {
		c.mu.RUnlock()
		return nil, err
	}
	observability.RecordChannelWait(c.cfg.Segment, "recv_begin", time.Since(start))
	return c.copyOut()
}

// TryRecv is Recv without waiting. It returns iox.ErrWouldBlock when the
// peer has nothing pending.
func (c *Channel) TryRecv() ([]byte, error) {
	c.mu.RLock()
	if c.closed.Load() {
		c.mu.RUnlock()
		return nil, ErrClosed
	}
	if atomic.LoadUint32(c.in.state()) != stateFull {
		closed := c.hdr.closed()
		c.mu.RUnlock()
		if closed {
			return nil, ErrClosed
		}
		return nil, iox.ErrWouldBlock
	}
	return c.copyOut()
}

// copyOut must be called with mu read-locked; Release unlocks it.
func (c *Channel) copyOut() ([]byte, error) {
	r, err := c.reader()
	if err != nil {
		c.mu.RUnlock()
		return nil, err
	}
	out := append([]byte(nil), r.Bytes()...)
	return out, r.Release()
}

// Stats counts completed operations on both buffers as seen from this side.
type Stats struct {
	Sent         uint64 `json:"sent"`
	Received     uint64 `json:"received"`
	PeerSent     uint64 `json:"peer_sent"`
	PeerReceived uint64 `json:"peer_received"`
}

// Balanced reports the half-duplex invariant: neither side is more than
// one message ahead of its reader.
func (s Stats) Balanced() bool {
	return s.Sent-s.PeerReceived <= 1 && s.PeerSent-s.Received <= 1
}

func (c *Channel) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.mem == nil {
		return Stats{}
	}
	return Stats{
		Sent:         atomic.LoadUint64(c.out.sent()),
		PeerReceived: atomic.LoadUint64(c.out.recvd()),
		PeerSent:     atomic.LoadUint64(c.in.sent()),
		Received:     atomic.LoadUint64(c.in.recvd()),
	}
}

// Close marks the segment closed for both sides and unmaps it once no
// Reader is outstanding. The creator also removes the segment and lock
// files. Close is idempotent.
func (c *Channel) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	// Waiters poll in short slices; wake them so they see the flag now.
	wakeWord(c.out.state())
	wakeWord(c.in.state())

	c.mu.Lock()
	defer c.mu.Unlock()
	atomic.StoreUint32(c.hdr.u32(offClosed), 1)
	wakeWord(c.out.state())
	wakeWord(c.in.state())
	if c.cfg.Role == Attacher {
		atomic.StoreUint32(c.hdr.u32(offAttacherReady), 0)
	}

	var errs []error
	if err := munmap(c.mem); err != nil {
		errs = append(errs, err)
	}
	c.mem = nil
	if err := c.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.cfg.Role == Creator {
		if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
		_ = os.Remove(c.lockPath)
		if err := unlockFile(c.lock); err != nil {
			errs = append(errs, err)
		}
	}
	logging.Infof("shm.Channel.Close segment=%s role=%s", c.cfg.Segment, c.cfg.Role)
	return errors.Join(errs...)
}
