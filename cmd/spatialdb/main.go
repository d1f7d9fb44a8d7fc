package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"spatialdb/pkg/common"
	"spatialdb/pkg/config"
	"spatialdb/pkg/core"
	"spatialdb/pkg/logging"
)

const Prompt = "spatial> "

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	dir := flag.String("dir", "", "Data directory (overrides storage.path)")
	backend := flag.String("backend", "", "Storage backend: file, badger or memory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if *dir != "" {
		cfg.Storage.Path = *dir
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := core.Open(cfg, core.WithLogger(log))
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Errorf("close database: %v", err)
		}
	}()

	fmt.Printf("spatialdb (%s backend, %s)\n", cfg.Storage.Backend, cfg.Storage.Path)
	fmt.Println("Type 'help' for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(Prompt)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])

		switch cmd {
		case "insert", "put":
			handleMutation(db, parts, common.OpInsert)
		case "delete", "del":
			handleMutation(db, parts, common.OpDelete)
		case "query":
			handleQuery(db, parts)
		case "flush":
			timed("Flushed", db.Flush)
		case "commit":
			timed("Committed", db.Commit)
		case "stats":
			handleStats(db)
		case "help":
			printHelp()
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		default:
			fmt.Printf("Unknown command: '%s'. Type 'help'.\n", cmd)
		}
	}
}

func parseCoords(args []string) ([]uint32, error) {
	out := make([]uint32, len(args))
	for i, a := range args {
		n, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("coordinate %q: %w", a, err)
		}
		out[i] = uint32(n)
	}
	return out, nil
}

func handleMutation(db *core.DB, parts []string, op common.Op) {
	if len(parts) < 5 {
		fmt.Printf("Usage: %s <x> <y> <z> <value>\n", parts[0])
		return
	}
	c, err := parseCoords(parts[1:4])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	v, err := common.ValueFromString(strings.Join(parts[4:], " "))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	row := core.Row{Op: op, Point: common.Point3{X: c[0], Y: c[1], Z: c[2]}, Value: v}

	timed("OK", func() error { return db.Batch([]core.Row{row}) })
}

func handleQuery(db *core.DB, parts []string) {
	if len(parts) != 7 {
		fmt.Println("Usage: query <minx> <miny> <minz> <maxx> <maxy> <maxz>")
		return
	}
	c, err := parseCoords(parts[1:])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	box, err := common.NewBox3(c[0], c[1], c[2], c[3], c[4], c[5])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	start := time.Now()
	pairs, err := db.Query(box)
	duration := time.Since(start)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("Found %d points (%v):\n", len(pairs), duration)
	for i, p := range pairs {
		if i >= 20 {
			fmt.Printf("... and %d more\n", len(pairs)-20)
			break
		}
		fmt.Printf("  %s -> %s\n", p.Point, p.Value)
	}
}

func handleStats(db *core.DB) {
	stats, err := db.Stats()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	for _, k := range []string{
		"staged_rows", "staged_bytes", "pending_ranges", "pending_bytes",
		"live_blocks", "retired_blocks", "data_bytes",
		"inserts", "deletes", "queries", "query_results", "flushes", "blocks_written", "rows_flushed", "rw_ratio",
	} {
		fmt.Printf("  %-15s %v\n", k, stats[k])
	}
}

func timed(label string, fn func() error) {
	start := time.Now()
	if err := fn(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Printf("%s (%v)\n", label, time.Since(start))
}

func printHelp() {
	fmt.Println(`
Commands:
  insert <x> <y> <z> <value>                       Stage an insert
  delete <x> <y> <z> <value>                       Stage a delete
  query <minx> <miny> <minz> <maxx> <maxy> <maxz>  Points inside the box
  flush                                            Compact staged rows into blocks
  commit                                           Persist staged rows
  stats                                            Show counters
  exit                                             Commit and exit
	`)
}
