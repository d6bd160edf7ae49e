package physmem

import "context"

// Batcher accumulates read and write requests and flushes them as a
// single vectorized call, matching memflow's phys_batcher(): Rust's
// Drop-triggered flush becomes an explicit Close (or Flush) in Go.
type Batcher struct {
	mem   PhysicalMemory
	reads []ReadRequest
	write []WriteRequest
}

// NewBatcher wraps mem for deferred, coalesced access.
func NewBatcher(mem PhysicalMemory) *Batcher {
	return &Batcher{mem: mem}
}

// Read queues a read; it does not touch the backend until Flush.
func (b *Batcher) Read(addr ReadRequest) {
	b.reads = append(b.reads, addr)
}

// Write queues a write; it does not touch the backend until Flush.
func (b *Batcher) Write(addr WriteRequest) {
	b.write = append(b.write, addr)
}

// Flush issues one batched read call (if any reads are queued) and
// one batched write call (if any writes are queued), then clears the
// queues. Reads are flushed before writes, matching program order for
// a caller that queues a read-modify-write sequence.
func (b *Batcher) Flush(ctx context.Context) error {
	if len(b.reads) > 0 {
		reads := b.reads
		b.reads = nil
		if err := b.mem.PhysReadRawList(ctx, reads); err != nil {
			return err
		}
	}
	if len(b.write) > 0 {
		writes := b.write
		b.write = nil
		if err := b.mem.PhysWriteRawList(ctx, writes); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes any remaining queued operations. It is safe to call
// Close on an empty Batcher.
func (b *Batcher) Close(ctx context.Context) error {
	return b.Flush(ctx)
}
