// skyshard-cli is an interactive shell over a local dataset tree.
//
// It opens the datastore read-only and offers catalog listing,
// attribute summaries and ad-hoc DuckDB SQL over the shard files.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"

	"github.com/kaelis/skyshard/internal/catalog"
	"github.com/kaelis/skyshard/internal/config"
	"github.com/kaelis/skyshard/internal/inspect"
	"github.com/kaelis/skyshard/internal/logging"
	"github.com/kaelis/skyshard/internal/stats"
)

type shell struct {
	store     *catalog.Datastore
	inspector *inspect.Inspector
}

func main() {
	dataDir := flag.String("data", "./data", "dataset root")
	catalogs := flag.String("catalogs", "*", "catalog allow-list")
	flag.Parse()

	logging.Init(slog.LevelWarn, false)

	cfg := config.DefaultConfig()
	cfg.DataDir = *dataDir
	cfg.Catalogs = *catalogs

	store := catalog.New(cfg)
	if err := store.Reload(); err != nil {
		log.Fatalf("Load dataset: %v", err)
	}

	inspector, err := inspect.New(cfg.DataDir)
	if err != nil {
		log.Fatalf("Open inspector: %v", err)
	}
	defer inspector.Close()

	sh := &shell{store: store, inspector: inspector}
	fmt.Printf("skyshard shell - %d catalog(s) under %s\n", len(store.Namespaces()), cfg.DataDir)
	fmt.Println(`Type "help" for commands, "exit" to quit.`)

	prompt.New(
		sh.execute,
		sh.complete,
		prompt.OptionPrefix("skyshard> "),
		prompt.OptionTitle("skyshard-cli"),
	).Run()
}

func (s *shell) execute(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	cmd, rest, _ := strings.Cut(line, " ")
	switch cmd {
	case "exit", "quit":
		os.Exit(0)
	case "help":
		s.help()
	case "catalogs":
		s.catalogs()
	case "stats":
		s.stats(strings.TrimSpace(rest))
	case "glob":
		fmt.Println(s.inspector.ShardGlob(strings.TrimSpace(rest)))
	case "scan":
		s.scan(strings.TrimSpace(rest))
	case "sql":
		s.sql(rest)
	default:
		fmt.Printf("unknown command %q, try help\n", cmd)
	}
}

func (s *shell) complete(d prompt.Document) []prompt.Suggest {
	suggestions := []prompt.Suggest{
		{Text: "catalogs", Description: "list catalogs and their attributes"},
		{Text: "stats", Description: "stats <catalog> - attribute distribution summary"},
		{Text: "sql", Description: "sql <query> - run DuckDB SQL over the shards"},
		{Text: "scan", Description: "scan <catalog> - dump every source of a catalog"},
		{Text: "glob", Description: "glob <catalog> - shard glob for read_parquet"},
		{Text: "help", Description: "show commands"},
		{Text: "exit", Description: "quit"},
	}
	return prompt.FilterHasPrefix(suggestions, d.GetWordBeforeCursor(), true)
}

func (s *shell) help() {
	fmt.Println("commands:")
	fmt.Println("  catalogs          list catalogs, partitions and attributes")
	fmt.Println("  stats <catalog>   attribute distribution summary")
	fmt.Println("  sql <query>       DuckDB SQL; use glob <catalog> for shard paths")
	fmt.Println("  scan <catalog>    dump every source of a catalog, ordered by name")
	fmt.Println("  glob <catalog>    print the read_parquet glob for a catalog")
	fmt.Println("  exit              quit")
}

func (s *shell) catalogs() {
	names := s.store.Namespaces()
	if len(names) == 0 {
		fmt.Println("no catalogs found")
		return
	}
	for _, name := range names {
		idx, ok := s.store.Index(name)
		if !ok {
			continue
		}
		meta, err := idx.Metadata()
		if err != nil {
			fmt.Printf("%s: %v\n", name, err)
			continue
		}
		fmt.Printf("%s  partitions=%d  attributes=%s\n",
			name, len(idx.Partitions()), strings.Join(meta.AttributeNames(), ","))
	}
}

func (s *shell) stats(name string) {
	idx, ok := s.store.Index(name)
	if !ok {
		fmt.Printf("unknown catalog %q\n", name)
		return
	}
	summary, err := stats.Summarize(idx)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("%s: %d sources in %d partitions\n", summary.Catalog, summary.Sources, summary.Partitions)
	for _, a := range summary.Attributes {
		fmt.Printf("  %-20s count=%-8d min=%-12g max=%-12g avg=%-12g p50=%-12g p99=%g\n",
			a.Name, a.Count, a.Min, a.Max, a.Avg, a.P50, a.P99)
	}
}

func (s *shell) scan(name string) {
	if !s.store.HasNamespace(name) {
		fmt.Printf("unknown catalog %q\n", name)
		return
	}
	rows, err := s.inspector.ScanCatalog(context.Background(), name)
	if err != nil {
		fmt.Println(err)
		return
	}
	for _, row := range rows {
		b, _ := json.Marshal(row)
		fmt.Println(string(b))
	}
	fmt.Printf("(%d rows)\n", len(rows))
}

func (s *shell) sql(q string) {
	q = strings.TrimSpace(q)
	if q == "" {
		fmt.Println("usage: sql <query>")
		return
	}
	rows, err := s.inspector.Query(context.Background(), q)
	if err != nil {
		fmt.Println(err)
		return
	}
	for _, row := range rows {
		b, _ := json.Marshal(row)
		fmt.Println(string(b))
	}
	fmt.Printf("(%d rows)\n", len(rows))
}
