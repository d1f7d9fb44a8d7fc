package monitor

import (
	"sync/atomic"
)

type WorkloadStats struct {
	InsertCount  uint64
	DeleteCount  uint64
	QueryCount   uint64
	FlushCount   uint64
	BlockCount   uint64
	RowsFlushed  uint64
	QueryResults uint64
}

func NewWorkloadStats() *WorkloadStats {
	return &WorkloadStats{}
}

func (ws *WorkloadStats) RecordInsert(n int) {
	atomic.AddUint64(&ws.InsertCount, uint64(n))
}

func (ws *WorkloadStats) RecordDelete(n int) {
	atomic.AddUint64(&ws.DeleteCount, uint64(n))
}

func (ws *WorkloadStats) RecordQuery(results int) {
	atomic.AddUint64(&ws.QueryCount, 1)
	atomic.AddUint64(&ws.QueryResults, uint64(results))
}

func (ws *WorkloadStats) RecordFlush(blocks, rows int) {
	atomic.AddUint64(&ws.FlushCount, 1)
	atomic.AddUint64(&ws.BlockCount, uint64(blocks))
	atomic.AddUint64(&ws.RowsFlushed, uint64(rows))
}

// Snapshot copies the counters.
func (ws *WorkloadStats) Snapshot() WorkloadStats {
	return WorkloadStats{
		InsertCount:  atomic.LoadUint64(&ws.InsertCount),
		DeleteCount:  atomic.LoadUint64(&ws.DeleteCount),
		QueryCount:   atomic.LoadUint64(&ws.QueryCount),
		FlushCount:   atomic.LoadUint64(&ws.FlushCount),
		BlockCount:   atomic.LoadUint64(&ws.BlockCount),
		RowsFlushed:  atomic.LoadUint64(&ws.RowsFlushed),
		QueryResults: atomic.LoadUint64(&ws.QueryResults),
	}
}

// GetReadWriteRatio is queries per logged mutation.
func (ws *WorkloadStats) GetReadWriteRatio() float64 {
	reads := atomic.LoadUint64(&ws.QueryCount)
	writes := atomic.LoadUint64(&ws.InsertCount) + atomic.LoadUint64(&ws.DeleteCount)

	if writes == 0 {
		if reads > 0 {
			return 100.0
		}
		return 0.0
	}
	return float64(reads) / float64(writes)
}
