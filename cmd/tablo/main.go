// Package main implements the tablo command line tool for inspecting
// and querying stored table snapshots.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/tablo-db/tablo/internal/cache"
	"github.com/tablo-db/tablo/internal/config"
	"github.com/tablo-db/tablo/internal/criteria"
	"github.com/tablo-db/tablo/internal/store"
	"github.com/tablo-db/tablo/internal/table"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (YAML or JSON)")
	name := flag.String("name", "", "Snapshot name")
	where := flag.String("where", "", "Filter criteria, comma separated (e.g. age>=30,name=Ann)")
	columns := flag.String("columns", "", "Columns to project, comma separated")
	order := flag.String("order", "", "Sort order, comma separated; prefix a column with - for descending")
	limit := flag.Int("limit", 0, "Maximum rows to print (0 = all)")
	offset := flag.Int("offset", 0, "Rows to skip")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	command := flag.Arg(0)

	config.LoadDotEnv("")
	cfg := loadConfig(*configPath)

	st := openStore(cfg)
	ctx := context.Background()

	switch command {
	case "list":
		runList(ctx, st)
	case "info":
		requireName(*name)
		runInfo(ctx, st, *name)
	case "query":
		requireName(*name)
		runQuery(ctx, st, *name, *where, *columns, *order, *limit, *offset)
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: tablo [flags] list|info|query\n\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func requireName(name string) {
	if name == "" {
		log.Fatalf("-name is required for this command")
	}
}

func loadConfig(path string) *config.Config {
	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}
	return cfg
}

func openStore(cfg *config.Config) *store.Store {
	var objects store.ObjectStorage
	var err error
	switch cfg.Storage.Type {
	case "s3":
		objects, err = store.NewS3Storage(context.Background(), cfg.Storage.S3.Bucket, store.S3Config{
			Region:       cfg.Storage.S3.Region,
			Endpoint:     cfg.Storage.S3.Endpoint,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
		})
	default:
		objects, err = store.NewLocalStorage(cfg.Storage.Path)
	}
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	var tableCache *cache.TableCache
	if cfg.Cache.Enabled {
		tableCache = cache.New(cfg.Cache.MaxEntries)
	}
	st, err := store.NewStore(objects, cfg.WorkDir(), tableCache)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	return st
}

func runList(ctx context.Context, st *store.Store) {
	names, err := st.List(ctx)
	if err != nil {
		log.Fatalf("Failed to list snapshots: %v", err)
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func runInfo(ctx context.Context, st *store.Store, name string) {
	t, err := st.Read(ctx, name)
	if err != nil {
		log.Fatalf("Failed to read snapshot: %v", err)
	}
	fmt.Printf("snapshot:   %s\n", name)
	fmt.Printf("rows:       %d\n", t.Len())
	fmt.Printf("key column: %s\n", orDash(t.KeyColumn()))
	fmt.Printf("columns:\n")
	for _, colName := range t.Columns() {
		col, _ := t.Schema().Column(colName)
		constraint := "null"
		if col.NotNull {
			constraint = "not null"
		}
		fmt.Printf("  %-20s %-8s %s\n", colName, col.Type, constraint)
	}
}

func runQuery(ctx context.Context, st *store.Store, name, where, columns, order string, limit, offset int) {
	t, err := st.Read(ctx, name)
	if err != nil {
		log.Fatalf("Failed to read snapshot: %v", err)
	}

	crits, err := parseCriteria(where)
	if err != nil {
		log.Fatalf("Invalid -where: %v", err)
	}
	result, err := t.Query(crits, splitList(columns), parseOrder(order), limit, offset)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	printTable(result)
}

func printTable(t *table.Table) {
	cols := t.Columns()
	fmt.Println(strings.Join(append([]string{"key"}, cols...), "\t"))
	for _, key := range t.Keys() {
		row, _ := t.Row(key)
		parts := []string{key.String()}
		for _, col := range cols {
			parts = append(parts, row[col].String())
		}
		fmt.Println(strings.Join(parts, "\t"))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseOrder(s string) []table.SortKey {
	var order []table.SortKey
	for _, part := range splitList(s) {
		if col, ok := strings.CutPrefix(part, "-"); ok {
			order = append(order, table.Desc(col))
		} else {
			order = append(order, table.Asc(part))
		}
	}
	return order
}

// comparison operators in scan order; two-character operators first
// so "<=" is not read as "<".
var whereOps = []string{"<=", ">=", "!=", "<>", "=", "<", ">"}

func parseCriteria(s string) ([]criteria.Criterion, error) {
	var crits []criteria.Criterion
	for _, part := range splitList(s) {
		parsed := false
		for _, op := range whereOps {
			field, raw, found := strings.Cut(part, op)
			if !found || field == "" {
				continue
			}
			crits = append(crits, criteria.C(strings.TrimSpace(field),
				criteria.Operator(op), parseLiteral(strings.TrimSpace(raw))))
			parsed = true
			break
		}
		if !parsed {
			return nil, fmt.Errorf("cannot parse criterion %q", part)
		}
	}
	return crits, nil
}

// parseLiteral reads a comparand: integer, float, boolean, or string.
func parseLiteral(s string) interface{} {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return strings.Trim(s, `"'`)
}
