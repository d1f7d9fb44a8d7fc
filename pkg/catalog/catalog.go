// Package catalog records which data blocks are live and the box each one
// covers, in a SQLite database next to the data file.
package catalog

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"spatialdb/pkg/common"
)

// Block describes one data block by the offset of its length prefix.
type Block struct {
	Offset int64
	Rows   int
	Bounds common.Box3
	// Filter is a serialized Bloom filter over the block's Morton keys.
	// Nil means unknown.
	Filter []byte
}

// MemoryPath opens a catalog that lives only as long as the process.
const MemoryPath = ":memory:"

type Catalog struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if path == MemoryPath {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	query := `
	CREATE TABLE IF NOT EXISTS blocks (
		block_offset INTEGER PRIMARY KEY,
		row_count    INTEGER NOT NULL,
		min_x        INTEGER NOT NULL,
		min_y        INTEGER NOT NULL,
		min_z        INTEGER NOT NULL,
		max_x        INTEGER NOT NULL,
		max_y        INTEGER NOT NULL,
		max_z        INTEGER NOT NULL,
		filter       BLOB,
		retired      INTEGER NOT NULL DEFAULT 0
	);`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("init catalog table: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set catalog pragmas: %w", err)
	}

	return &Catalog{db: db}, nil
}

const blockColumns = "block_offset, row_count, min_x, min_y, min_z, max_x, max_y, max_z, filter"

func scanBlocks(rows *sql.Rows) ([]Block, error) {
	defer rows.Close()

	var out []Block
	for rows.Next() {
		var b Block
		var minX, minY, minZ, maxX, maxY, maxZ int64
		if err := rows.Scan(&b.Offset, &b.Rows, &minX, &minY, &minZ, &maxX, &maxY, &maxZ, &b.Filter); err != nil {
			return nil, err
		}
		b.Bounds = common.Box3{
			Min: common.Point3{X: uint32(minX), Y: uint32(minY), Z: uint32(minZ)},
			Max: common.Point3{X: uint32(maxX), Y: uint32(maxY), Z: uint32(maxZ)},
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Live lists the blocks that have not been retired, oldest first.
func (c *Catalog) Live() ([]Block, error) {
	rows, err := c.db.Query("SELECT " + blockColumns + " FROM blocks WHERE retired = 0 ORDER BY block_offset ASC")
	if err != nil {
		return nil, err
	}
	return scanBlocks(rows)
}

// Overlapping lists live blocks whose bounds intersect box.
func (c *Catalog) Overlapping(box common.Box3) ([]Block, error) {
	rows, err := c.db.Query("SELECT "+blockColumns+` FROM blocks
		WHERE retired = 0
		  AND min_x <= ? AND max_x >= ?
		  AND min_y <= ? AND max_y >= ?
		  AND min_z <= ? AND max_z >= ?
		ORDER BY block_offset ASC`,
		int64(box.Max.X), int64(box.Min.X),
		int64(box.Max.Y), int64(box.Min.Y),
		int64(box.Max.Z), int64(box.Min.Z),
	)
	if err != nil {
		return nil, err
	}
	return scanBlocks(rows)
}

// Swap retires and adds blocks in a single transaction.
func (c *Catalog) Swap(retire []int64, add []Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}

	for _, off := range retire {
		if _, err := tx.Exec("UPDATE blocks SET retired = 1 WHERE block_offset = ?", off); err != nil {
			tx.Rollback()
			return err
		}
	}

	stmt, err := tx.Prepare("INSERT INTO blocks (" + blockColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, b := range add {
		if _, err := stmt.Exec(b.Offset, b.Rows,
			int64(b.Bounds.Min.X), int64(b.Bounds.Min.Y), int64(b.Bounds.Min.Z),
			int64(b.Bounds.Max.X), int64(b.Bounds.Max.Y), int64(b.Bounds.Max.Z),
			b.Filter,
		); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Counts reports live and retired block totals.
func (c *Catalog) Counts() (live, retired int, err error) {
	err = c.db.QueryRow("SELECT COALESCE(SUM(retired = 0), 0), COALESCE(SUM(retired = 1), 0) FROM blocks").Scan(&live, &retired)
	return live, retired, err
}

func (c *Catalog) Close() error {
	return c.db.Close()
}
