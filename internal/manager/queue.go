package manager

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-adapters/internal/device"
)

// Command kinds, used for logging and metrics.
const (
	kindDevice = "device"
	kindScene  = "scene"
)

// queueItem is one pending command. done is buffered so the dispatcher
// never blocks on a caller that has stopped waiting.
type queueItem struct {
	id        string
	seq       uint64
	priority  int
	kind      string
	adapterID string
	enqueued  time.Time
	ctx       context.Context
	run       func(ctx context.Context) error
	done      chan error
}

func (it *queueItem) resolve(err error) {
	select {
	case it.done <- err:
	default:
	}
}

// byDispatchOrder sorts higher priority first, then earlier arrival.
func byDispatchOrder(a, b *queueItem) int {
	if a.priority != b.priority {
		return b.priority - a.priority
	}
	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	}
	return 0
}

// enqueue adds an item and starts the dispatcher if it is idle. It never
// blocks: a full queue rejects the item.
func (m *Manager) enqueue(it *queueItem) error {
	m.qmu.Lock()
	if len(m.queue) >= m.maxQueue {
		m.qmu.Unlock()
		return device.Errorf(device.KindInternal, "manager.enqueue", "%w: %d pending", ErrQueueFull, m.maxQueue)
	}
	m.seq++
	it.seq = m.seq
	it.id = uuid.NewString()
	it.enqueued = m.now()
	it.done = make(chan error, 1)
	m.queue = append(m.queue, it)
	depth := len(m.queue)
	start := !m.draining
	if start {
		m.draining = true
		m.drainWG.Add(1)
	}
	m.qmu.Unlock()

	m.metrics.SetQueueDepth(depth)
	if start {
		go m.drain()
	}
	return nil
}

// next pops the head in dispatch order, or reports the queue empty and marks
// the dispatcher idle.
func (m *Manager) next() (*queueItem, bool) {
	m.qmu.Lock()
	defer m.qmu.Unlock()
	if len(m.queue) == 0 {
		m.draining = false
		return nil, false
	}
	slices.SortStableFunc(m.queue, byDispatchOrder)
	it := m.queue[0]
	m.queue[0] = nil
	m.queue = m.queue[1:]
	m.metrics.SetQueueDepth(len(m.queue))
	return it, true
}

// drain is the single dispatcher. It exits once the queue is empty; the next
// enqueue starts a fresh one.
func (m *Manager) drain() {
	defer m.drainWG.Done()
	for {
		it, ok := m.next()
		if !ok {
			return
		}
		if !m.throttle(it) {
			continue
		}
		m.dispatch(it)
	}
}

// throttle waits out whatever remains of the minimum gap since the previous
// dispatch and reports whether the item should still run. The wait lives as
// long as the manager and ends early only when the item's caller gives up or
// the manager shuts down; either way the item is resolved without running,
// so lastDispatch keeps marking the last command that reached an adapter.
func (m *Manager) throttle(it *queueItem) bool {
	if err := it.ctx.Err(); err != nil {
		it.resolve(device.NewError(device.KindTimeout, "manager.dispatch", err))
		return false
	}
	if m.lastDispatch.IsZero() || m.throttleGap <= 0 {
		return true
	}
	if wait := m.throttleGap - m.now().Sub(m.lastDispatch); wait > 0 {
		ctx, cancel := context.WithCancel(m.life)
		stop := context.AfterFunc(it.ctx, cancel)
		m.sleep(ctx, wait)
		stop()
		cancel()
	}
	switch {
	case it.ctx.Err() != nil:
		it.resolve(device.NewError(device.KindTimeout, "manager.dispatch", it.ctx.Err()))
		return false
	case m.life.Err() != nil:
		m.metrics.AddCleared(it.adapterID, it.kind)
		it.resolve(device.NewError(device.KindInternal, "manager.dispatch", ErrQueueCleared))
		return false
	}
	return true
}

func (m *Manager) dispatch(it *queueItem) {
	start := m.now()
	m.lastDispatch = start
	waited := start.Sub(it.enqueued)

	ctx, cancel := context.WithTimeout(it.ctx, m.commandTimeout)
	err := it.run(ctx)
	cancel()

	took := m.now().Sub(start)
	m.metrics.ObserveCommand(it.adapterID, it.kind, waited, took, err)
	if err != nil {
		m.logger.Warn("command failed",
			"queue_id", it.id, "adapter_id", it.adapterID, "kind", it.kind, "error", err)
	} else {
		m.logger.Debug("command dispatched",
			"queue_id", it.id, "adapter_id", it.adapterID, "kind", it.kind, "took", took)
	}
	it.resolve(err)
}

// submit queues run and waits for its result or the caller's context.
func (m *Manager) submit(ctx context.Context, kind, adapterID string, priority int, run func(context.Context) error) error {
	it := &queueItem{
		priority:  priority,
		kind:      kind,
		adapterID: adapterID,
		ctx:       ctx,
		run:       run,
	}
	if err := m.enqueue(it); err != nil {
		return err
	}
	select {
	case err := <-it.done:
		return err
	case <-ctx.Done():
		return device.NewError(device.KindTimeout, "manager.submit", ctx.Err())
	}
}

// QueueLength returns the number of commands waiting for dispatch. The one
// currently executing is not counted.
func (m *Manager) QueueLength() int {
	m.qmu.Lock()
	defer m.qmu.Unlock()
	return len(m.queue)
}

// ClearQueue empties the queue, failing every pending command with
// ErrQueueCleared. It returns how many were rejected.
func (m *Manager) ClearQueue() int {
	m.qmu.Lock()
	pending := m.queue
	m.queue = nil
	m.qmu.Unlock()

	m.metrics.SetQueueDepth(0)
	for _, it := range pending {
		m.metrics.AddCleared(it.adapterID, it.kind)
		it.resolve(device.NewError(device.KindInternal, "manager.ClearQueue", ErrQueueCleared))
	}
	if len(pending) > 0 {
		m.logger.Info("command queue cleared", "rejected", len(pending))
	}
	return len(pending)
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
