package core

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"spatialdb/pkg/catalog"
	"spatialdb/pkg/common"
	"spatialdb/pkg/config"
	"spatialdb/pkg/core/memory"
	"spatialdb/pkg/core/structure"
	"spatialdb/pkg/logging"
	"spatialdb/pkg/monitor"
	"spatialdb/pkg/staging"
	"spatialdb/pkg/storage"
	"spatialdb/pkg/storage/block"
)

const (
	stagingFile = "staging.log"
	dataFile    = "data.blk"
	catalogFile = "catalog.db"

	treeDegree = 32
	bloomFPR   = 0.01
)

type (
	Row  = common.Row[common.Point3, common.Value]
	Pair = common.Pair[common.Point3, common.Value]
)

// DB stages mutations in a log and compacts them into immutable data blocks
// on Flush. Queries merge both.
type DB struct {
	mu           sync.Mutex
	conf         *config.Config
	staging      *staging.Log[common.Box3, common.Point3, common.Value]
	blocks       *block.Store[common.Box3, common.Point3, common.Value]
	catalog      *catalog.Catalog
	stagingStore storage.Store
	dataStore    storage.Store
	stats        *monitor.WorkloadStats
	log          *zap.SugaredLogger
}

type Option func(*DB)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(db *DB) { db.log = log }
}

func Open(cfg *config.Config, opts ...Option) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	st, data, err := openStores(cfg.Storage)
	if err != nil {
		return nil, err
	}
	return openOn(cfg, st, data, opts...)
}

// openOn builds a DB over already opened staging and data stores. It takes
// ownership of both.
func openOn(cfg *config.Config, st, data storage.Store, opts ...Option) (*DB, error) {
	db := &DB{
		conf:         cfg,
		stagingStore: st,
		dataStore:    data,
		stats:        monitor.NewWorkloadStats(),
		log:          logging.Nop(),
	}
	for _, opt := range opts {
		opt(db)
	}

	var err error
	catalogPath := catalog.MemoryPath
	if cfg.Storage.Backend != config.BackendMemory {
		catalogPath = filepath.Join(cfg.Storage.Path, catalogFile)
	}
	if db.catalog, err = catalog.Open(catalogPath); err != nil {
		db.closeStores()
		return nil, err
	}

	schema := common.Schema3()
	db.staging, err = staging.Open[common.Box3](db.stagingStore, schema,
		staging.WithCache(cfg.Cache.Enabled),
		staging.WithLogger(db.log),
	)
	if err != nil {
		db.catalog.Close()
		db.closeStores()
		return nil, fmt.Errorf("open staging: %w", err)
	}
	db.blocks = block.Open[common.Box3](db.dataStore, schema,
		block.WithChunkSize(cfg.Storage.ReadChunkSize),
		block.WithLogger(db.log),
	)

	staged, err := db.staging.Len()
	if err != nil {
		db.Close()
		return nil, err
	}
	live, retired, err := db.catalog.Counts()
	if err != nil {
		db.Close()
		return nil, err
	}
	db.log.Infof("[spatialdb] opened %s (%s): %d staged rows, %d live blocks, %d retired",
		cfg.Storage.Path, cfg.Storage.Backend, staged, live, retired)
	return db, nil
}

func openStores(cfg config.StorageConfig) (storage.Store, storage.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemStore(), storage.NewMemStore(), nil
	case config.BackendFile, config.BackendBadger:
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	open := func(name string) (storage.Store, error) {
		if cfg.Backend == config.BackendBadger {
			base := strings.TrimSuffix(name, filepath.Ext(name))
			return storage.OpenBadgerStore(filepath.Join(cfg.Path, base+".badger"))
		}
		return storage.OpenFileStore(filepath.Join(cfg.Path, name))
	}

	st, err := open(stagingFile)
	if err != nil {
		return nil, nil, err
	}
	data, err := open(dataFile)
	if err != nil {
		closeStore(st)
		return nil, nil, err
	}
	return st, data, nil
}

func closeStore(s storage.Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (db *DB) closeStores() error {
	return errors.Join(closeStore(db.stagingStore), closeStore(db.dataStore))
}

func validate(rows []Row) error {
	for i, r := range rows {
		if !r.Point.Valid() {
			return fmt.Errorf("row %d: %w: %s", i, common.ErrCoordinate, r.Point)
		}
	}
	return nil
}

func (db *DB) Insert(p common.Point3, v common.Value) error {
	return db.Batch([]Row{common.Insert(p, v)})
}

func (db *DB) Delete(p common.Point3, v common.Value) error {
	return db.Batch([]Row{common.Delete(p, v)})
}

// Batch stages rows in order. When a flush threshold is configured and the
// staging log reaches it, the log is flushed before Batch returns.
func (db *DB) Batch(rows []Row) error {
	if err := validate(rows); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.staging.Batch(rows); err != nil {
		return err
	}
	for _, r := range rows {
		if r.Op == common.OpDelete {
			db.stats.RecordDelete(1)
		} else {
			db.stats.RecordInsert(1)
		}
	}

	if t := db.conf.Storage.FlushThreshold; t > 0 {
		n, err := db.staging.Len()
		if err != nil {
			return err
		}
		if n >= t {
			return db.flushLocked()
		}
	}
	return nil
}

// replay folds the staging mirror into a merge table.
func (db *DB) replay() *memory.MergeTable {
	mt := memory.NewMergeTable(treeDegree)
	for _, row := range db.staging.Rows() {
		mt.Apply(row)
	}
	return mt
}

// Query returns the live pairs inside box in Z-order: block rows and staged
// inserts, minus pairs whose latest staged row is a delete.
func (db *DB) Query(box common.Box3) ([]Pair, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	staged := db.replay()
	result := memory.NewMergeTable(treeDegree)

	blocks, err := db.catalog.Overlapping(box)
	if err != nil {
		return nil, err
	}
	for _, b := range blocks {
		rows, err := db.blocks.Query(b.Offset, box)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", b.Offset, err)
		}
		for _, r := range rows {
			if !staged.Deleted(r.Point, r.Value) {
				result.Put(r.Point, r.Value)
			}
		}
	}

	it := db.staging.Query(box)
	for it.Next() {
		if !staged.Deleted(it.Point(), it.Value()) {
			result.Put(it.Point(), it.Value())
		}
	}

	out := result.Live()
	db.stats.RecordQuery(len(out))
	return out, nil
}

// Flush compacts the staging log into data blocks and clears it.
func (db *DB) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.flushLocked()
}

func (db *DB) flushLocked() error {
	if len(db.staging.Rows()) == 0 {
		return nil
	}
	staged := db.replay()

	retire, carried, err := db.rewriteTargets(staged)
	if err != nil {
		return err
	}

	out := memory.NewMergeTable(treeDegree)
	for _, r := range carried {
		out.Put(r.Point, r.Value)
	}
	for _, r := range staged.Live() {
		out.Put(r.Point, r.Value)
	}
	pairs := out.Live()

	var added []catalog.Block
	for start := 0; start < len(pairs); start += db.conf.Storage.BlockRows {
		chunk := pairs[start:min(start+db.conf.Storage.BlockRows, len(pairs))]
		off, err := db.blocks.Batch(chunk)
		if err != nil {
			return fmt.Errorf("write block: %w", err)
		}
		added = append(added, describeBlock(off, chunk))
	}
	if err := storage.Sync(db.dataStore); err != nil {
		return err
	}

	if err := db.catalog.Swap(blockOffsets(retire), added); err != nil {
		return fmt.Errorf("update catalog: %w", err)
	}
	for _, b := range retire {
		size := int64(block.PrefixSize + b.Rows*common.Schema3().PairSize())
		if err := db.dataStore.Delete(b.Offset, size); err != nil {
			db.log.Warnf("[spatialdb] release block %d: %v", b.Offset, err)
		}
	}

	stagedRows := len(db.staging.Rows())
	if err := db.staging.Clear(); err != nil {
		return err
	}
	if err := db.staging.Commit(); err != nil {
		return err
	}
	if err := storage.Sync(db.stagingStore); err != nil {
		return err
	}

	db.stats.RecordFlush(len(added), len(pairs))
	db.log.Infof("[spatialdb] flushed %d staged rows: %d blocks written, %d rewritten, %d rows",
		stagedRows, len(added), len(retire), len(pairs))
	return nil
}

// rewriteTargets finds live blocks holding a pair that a staged delete
// removes. Those blocks are retired and their surviving rows returned.
func (db *DB) rewriteTargets(staged *memory.MergeTable) ([]catalog.Block, []Pair, error) {
	dead := staged.DeletedPoints()
	if len(dead) == 0 {
		return nil, nil, nil
	}
	live, err := db.catalog.Live()
	if err != nil {
		return nil, nil, err
	}

	var retire []catalog.Block
	var carried []Pair
	for _, b := range live {
		if !db.mayHold(b, dead) {
			continue
		}
		rows, err := db.blocks.List(b.Offset)
		if err != nil {
			return nil, nil, fmt.Errorf("block %d: %w", b.Offset, err)
		}
		kept := make([]Pair, 0, len(rows))
		for _, r := range rows {
			if !staged.Deleted(r.Point, r.Value) {
				kept = append(kept, r)
			}
		}
		if len(kept) == len(rows) {
			continue
		}
		retire = append(retire, b)
		carried = append(carried, kept...)
	}
	return retire, carried, nil
}

func describeBlock(offset int64, rows []Pair) catalog.Block {
	bounds := common.PointBox(rows[0].Point)
	filter := structure.NewBloomFilter(uint(len(rows)), bloomFPR)
	for _, r := range rows {
		bounds = bounds.Extend(r.Point)
		filter.Add(r.Point.Morton())
	}
	return catalog.Block{Offset: offset, Rows: len(rows), Bounds: bounds, Filter: filter.Bytes()}
}

// mayHold reports whether block b can contain any of points.
func (db *DB) mayHold(b catalog.Block, points []common.Point3) bool {
	var filter *structure.BloomFilter
	if b.Filter != nil {
		f, err := structure.FromBytes(b.Filter)
		if err != nil {
			db.log.Warnf("[spatialdb] block %d: %v", b.Offset, err)
		} else {
			filter = f
		}
	}
	for _, p := range points {
		if p.Overlaps(b.Bounds) && (filter == nil || filter.Contains(p.Morton())) {
			return true
		}
	}
	return false
}

func blockOffsets(blocks []catalog.Block) []int64 {
	out := make([]int64, len(blocks))
	for i, b := range blocks {
		out[i] = b.Offset
	}
	return out
}

// Commit makes staged rows durable without compacting them.
func (db *DB) Commit() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.staging.Commit(); err != nil {
		return err
	}
	return storage.Sync(db.stagingStore)
}

func (db *DB) Stats() (map[string]interface{}, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	stagedRows, err := db.staging.Len()
	if err != nil {
		return nil, err
	}
	stagedBytes, err := db.staging.Bytes()
	if err != nil {
		return nil, err
	}
	dataBytes, err := db.blocks.Len()
	if err != nil {
		return nil, err
	}
	live, retired, err := db.catalog.Counts()
	if err != nil {
		return nil, err
	}
	ranges, pendingBytes := db.staging.Pending()
	snap := db.stats.Snapshot()

	return map[string]interface{}{
		"staged_rows":     stagedRows,
		"staged_bytes":    stagedBytes,
		"pending_ranges":  ranges,
		"pending_bytes":   pendingBytes,
		"live_blocks":     live,
		"retired_blocks":  retired,
		"data_bytes":      dataBytes,
		"inserts":         snap.InsertCount,
		"deletes":         snap.DeleteCount,
		"queries":         snap.QueryCount,
		"flushes":         snap.FlushCount,
		"blocks_written":  snap.BlockCount,
		"rows_flushed":    snap.RowsFlushed,
		"query_results":   snap.QueryResults,
		"rw_ratio":        db.stats.GetReadWriteRatio(),
		"storage_backend": db.conf.Storage.Backend,
	}, nil
}

// Close commits staged rows and releases every store.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var errs []error
	if db.staging != nil {
		errs = append(errs, db.staging.Commit(), storage.Sync(db.stagingStore))
	}
	if db.catalog != nil {
		errs = append(errs, db.catalog.Close())
	}
	errs = append(errs, db.closeStores())
	return errors.Join(errs...)
}
