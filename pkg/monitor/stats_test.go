package monitor

import "testing"

func TestWorkloadStats(t *testing.T) {
	ws := NewWorkloadStats()
	if r := ws.GetReadWriteRatio(); r != 0 {
		t.Fatalf("empty ratio: got %v", r)
	}

	ws.RecordQuery(3)
	if r := ws.GetReadWriteRatio(); r != 100 {
		t.Fatalf("reads only ratio: got %v", r)
	}

	ws.RecordInsert(3)
	ws.RecordDelete(1)
	ws.RecordQuery(0)
	ws.RecordFlush(2, 40)

	snap := ws.Snapshot()
	if snap.InsertCount != 3 || snap.DeleteCount != 1 {
		t.Errorf("mutations: got %+v", snap)
	}
	if snap.QueryCount != 2 || snap.QueryResults != 3 {
		t.Errorf("queries: got %+v", snap)
	}
	if snap.FlushCount != 1 || snap.BlockCount != 2 || snap.RowsFlushed != 40 {
		t.Errorf("flushes: got %+v", snap)
	}
	if r := ws.GetReadWriteRatio(); r != 0.5 {
		t.Errorf("ratio: got %v", r)
	}
}
