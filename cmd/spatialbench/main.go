package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"spatialdb/pkg/common"
	"spatialdb/pkg/config"
	"spatialdb/pkg/core"
)

func main() {
	backend := flag.String("backend", config.BackendFile, "Storage backend: file, badger or memory")
	n := flag.Int("n", 50000, "Number of points to insert")
	batch := flag.Int("batch", 500, "Rows per batch")
	queries := flag.Int("q", 1000, "Number of box queries")
	span := flag.Uint("span", 4096, "Coordinate range per axis")
	side := flag.Uint("side", 64, "Query box side length")
	cache := flag.Bool("cache", true, "Enable the staging write cache")
	flag.Parse()

	dir, err := os.MkdirTemp("", "spatialbench")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	cfg := config.Default()
	cfg.Storage.Backend = *backend
	cfg.Storage.Path = dir
	cfg.Cache.Enabled = *cache

	db, err := core.Open(cfg)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer db.Close()

	fmt.Printf("spatialdb benchmark (backend=%s cache=%v N=%d)\n", *backend, *cache, *n)
	fmt.Println("---------------------------------------------------")

	rng := rand.New(rand.NewSource(1))
	coord := func() uint32 { return uint32(rng.Intn(int(*span))) }

	start := time.Now()
	rows := make([]core.Row, 0, *batch)
	for i := 0; i < *n; i++ {
		v, _ := common.ValueFromString(fmt.Sprintf("p%d", i))
		rows = append(rows, common.Insert(common.Point3{X: coord(), Y: coord(), Z: coord()}, v))
		if len(rows) == *batch || i == *n-1 {
			if err := db.Batch(rows); err != nil {
				log.Fatalf("batch: %v", err)
			}
			rows = rows[:0]
		}
	}
	if err := db.Commit(); err != nil {
		log.Fatalf("commit: %v", err)
	}
	insertDur := time.Since(start)
	fmt.Printf("   Insert: %v | %.0f rows/s\n", insertDur, float64(*n)/insertDur.Seconds())

	start = time.Now()
	if err := db.Flush(); err != nil {
		log.Fatalf("flush: %v", err)
	}
	fmt.Printf("   Flush:  %v\n", time.Since(start))

	start = time.Now()
	found := 0
	for i := 0; i < *queries; i++ {
		x, y, z := coord(), coord(), coord()
		box, err := common.NewBox3(x, y, z, x+uint32(*side), y+uint32(*side), z+uint32(*side))
		if err != nil {
			log.Fatal(err)
		}
		pairs, err := db.Query(box)
		if err != nil {
			log.Fatalf("query: %v", err)
		}
		found += len(pairs)
	}
	queryDur := time.Since(start)
	fmt.Printf("   Query:  %v | QPS: %.0f | %d points\n", queryDur, float64(*queries)/queryDur.Seconds(), found)
}
