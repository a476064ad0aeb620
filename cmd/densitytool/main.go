// densitytool builds and maintains density scorer models for active learning.
//
// Usage:
//
//	densitytool init   -table data.csv -name pool
//	densitytool init   -sqlite data.db -sqltable pool -key id -name pool
//	densitytool update -name pool -keys labeled.csv
//	densitytool score  -name pool -keys candidates.csv
//	densitytool info   -name pool
//	densitytool list
//	densitytool export -name pool -out pool.msgpack
//	densitytool import -in pool.msgpack -name pool
//	densitytool delete -name pool
//
// Every command accepts -config (YAML settings) and -store (store directory,
// overrides the config). Key files are CSV files whose first column holds
// the row keys.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	density "github.com/knime/knime-activelearning-sub000"
	"github.com/knime/knime-activelearning-sub000/config"
	"github.com/knime/knime-activelearning-sub000/store"
	"github.com/knime/knime-activelearning-sub000/table"
)

var commands = map[string]func(ctx context.Context, args []string) error{
	"init":   runInit,
	"update": runUpdate,
	"score":  runScore,
	"info":   runInfo,
	"list":   runList,
	"export": runExport,
	"import": runImport,
	"delete": runDelete,
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	run, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[2:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: densitytool <init|update|score|info|list|export|import|delete> [flags]")
}

// common holds the flags every command accepts.
type common struct {
	configPath string
	storePath  string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "YAML config file (default: search configs/densitytool.yaml, densitytool.yaml)")
	fs.StringVar(&c.storePath, "store", "", "model store directory (overrides the config)")
}

func (c *common) load() (*config.Config, *store.Store, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	path := cfg.Store.Path
	if c.storePath != "" {
		path = c.storePath
	}
	st, err := store.Open(path, cfg.Store.CacheSize)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var c common
	c.register(fs)
	csvPath := fs.String("table", "", "CSV table: key column first, header row")
	sqlitePath := fs.String("sqlite", "", "SQLite database file")
	sqlTable := fs.String("sqltable", "", "table name in the SQLite database")
	keyColumn := fs.String("key", "key", "key column of the SQLite table")
	name := fs.String("name", "", "model name (required)")
	progress := fs.Bool("progress", false, "log build progress")
	fs.Parse(args)

	if *name == "" || (*csvPath == "") == (*sqlitePath == "") {
		fs.Usage()
		return fmt.Errorf("need -name and exactly one of -table or -sqlite")
	}

	cfg, st, err := c.load()
	if err != nil {
		return err
	}
	defer st.Close()
	dcfg, err := cfg.Density()
	if err != nil {
		return err
	}

	var tbl density.Table
	if *csvPath != "" {
		if tbl, err = table.OpenCSV(*csvPath); err != nil {
			return err
		}
	} else {
		if *sqlTable == "" {
			return fmt.Errorf("-sqlite needs -sqltable")
		}
		sq, err := table.OpenSQLite(ctx, *sqlitePath, *sqlTable, *keyColumn)
		if err != nil {
			return err
		}
		defer sq.Close()
		tbl = sq
	}

	var report density.ProgressFunc
	if *progress {
		report = progressLogger()
	}
	model, advisories, err := density.Initialize(ctx, tbl, dcfg, report)
	if err != nil {
		return err
	}
	for _, a := range advisories {
		log.Printf("warning: %s", a)
	}
	if err := st.Save(*name, model); err != nil {
		return err
	}
	fmt.Println(model.Summary())
	return nil
}

func runUpdate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	var c common
	c.register(fs)
	name := fs.String("name", "", "model name (required)")
	keysPath := fs.String("keys", "", "CSV file with the keys of newly labeled rows (required)")
	fs.Parse(args)
	if *name == "" || *keysPath == "" {
		fs.Usage()
		return fmt.Errorf("need -name and -keys")
	}

	cfg, st, err := c.load()
	if err != nil {
		return err
	}
	defer st.Close()
	policy, err := cfg.UnknownRowPolicy()
	if err != nil {
		return err
	}
	keys, err := readKeyFile(ctx, *keysPath)
	if err != nil {
		return err
	}
	model, err := st.Load(*name)
	if err != nil {
		return err
	}

	report, err := model.UpdateBatch(density.NewMonitor(ctx, nil), keys, policy)
	if err != nil {
		return err
	}
	if a := report.Advisory(); a != "" {
		log.Printf("warning: %s", a)
	}
	if err := st.SavePotentials(*name, model); err != nil {
		return err
	}
	fmt.Printf("Updated %d rows of %s.\n", report.Processed, *name)
	return nil
}

func runScore(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	var c common
	c.register(fs)
	name := fs.String("name", "", "model name (required)")
	keysPath := fs.String("keys", "", "CSV file with the keys to score (default: all rows)")
	fs.Parse(args)
	if *name == "" {
		fs.Usage()
		return fmt.Errorf("need -name")
	}

	cfg, st, err := c.load()
	if err != nil {
		return err
	}
	defer st.Close()
	policy, err := cfg.UnknownRowPolicy()
	if err != nil {
		return err
	}
	model, err := st.Load(*name)
	if err != nil {
		return err
	}
	keys := model.NeighborhoodModel().Keys()
	if *keysPath != "" {
		if keys, err = readKeyFile(ctx, *keysPath); err != nil {
			return err
		}
	}

	scores, report, err := model.ScoreBatch(keys, policy)
	if err != nil {
		return err
	}
	if a := report.Advisory(); a != "" {
		log.Printf("warning: %s", a)
	}
	for _, s := range scores {
		if !s.Known {
			fmt.Printf("%s,?\n", s.Key)
			continue
		}
		fmt.Printf("%s,%g\n", s.Key, s.Potential)
	}
	return nil
}

func runInfo(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	var c common
	c.register(fs)
	name := fs.String("name", "", "model name (required)")
	fs.Parse(args)
	if *name == "" {
		fs.Usage()
		return fmt.Errorf("need -name")
	}
	_, st, err := c.load()
	if err != nil {
		return err
	}
	defer st.Close()

	model, err := st.Load(*name)
	if err != nil {
		return err
	}
	fmt.Println(model.Summary())
	fmt.Printf("Model id: %s\n", model.ID())
	fmt.Printf("Kernel: %s\n", model.NeighborhoodModel().Weight().Kind)
	if features := model.Features(); features != nil {
		fmt.Printf("Features: %v\n", features)
	}
	return nil
}

func runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	var c common
	c.register(fs)
	fs.Parse(args)
	_, st, err := c.load()
	if err != nil {
		return err
	}
	defer st.Close()

	names, err := st.Names()
	if err != nil {
		return err
	}
	for _, n := range names {
		meta, err := st.Info(n)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%d rows\t%d features\n", n, meta.Rows, meta.NrFeatures)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var c common
	c.register(fs)
	name := fs.String("name", "", "model name (required)")
	out := fs.String("out", "", "output file (required)")
	fs.Parse(args)
	if *name == "" || *out == "" {
		fs.Usage()
		return fmt.Errorf("need -name and -out")
	}
	_, st, err := c.load()
	if err != nil {
		return err
	}
	defer st.Close()

	model, err := st.Load(*name)
	if err != nil {
		return err
	}
	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := density.WriteScorerModel(f, model); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	var c common
	c.register(fs)
	in := fs.String("in", "", "model file written by export (required)")
	name := fs.String("name", "", "model name (required)")
	fs.Parse(args)
	if *name == "" || *in == "" {
		fs.Usage()
		return fmt.Errorf("need -in and -name")
	}
	_, st, err := c.load()
	if err != nil {
		return err
	}
	defer st.Close()

	f, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer f.Close()
	model, err := density.ReadScorerModel(f)
	if err != nil {
		return err
	}
	if err := st.Save(*name, model); err != nil {
		return err
	}
	fmt.Println(model.Summary())
	return nil
}

func runDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	var c common
	c.register(fs)
	name := fs.String("name", "", "model name (required)")
	fs.Parse(args)
	if *name == "" {
		fs.Usage()
		return fmt.Errorf("need -name")
	}
	_, st, err := c.load()
	if err != nil {
		return err
	}
	defer st.Close()
	return st.Delete(*name)
}

func readKeyFile(ctx context.Context, path string) ([]string, error) {
	tbl, err := table.OpenCSV(path)
	if err != nil {
		return nil, err
	}
	return table.ReadKeys(ctx, tbl)
}

// progressLogger logs whenever the overall progress passes another 10%.
func progressLogger() density.ProgressFunc {
	last := -1
	return func(fraction float64, message string) {
		if step := int(fraction * 10); step > last {
			last = step
			log.Printf("%3.0f%% %s", fraction*100, message)
		}
	}
}
