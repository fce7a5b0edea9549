package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"cafeload/internal/config"
	"cafeload/internal/loader"
	"cafeload/internal/metrics"
	"cafeload/internal/metrics/datadog"
	parserjson "cafeload/internal/parser/json"
	"cafeload/internal/storage"

	// register all backends with the storage factory.
	// config specifies which to use but we need to build in support for all of them.
	_ "cafeload/internal/storage/all"
)

// main is the entry point for the load binary. It loads the pipeline config,
// optionally initializes a metrics backend, and runs the batch load.
func main() {
	var (
		cfgPath           string
		inputPath         string
		metricsBackendFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/load.json", "pipeline config path (.json or .yaml)")
	flag.StringVar(&inputPath, "input", "", "transaction batch file (overrides source.file.path)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (datadog, none)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	issues := config.ValidatePipeline(p)
	hasError := false
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}

	// If validate flag is set, only validate the configuration and exit
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	// Decide metrics backend: flag → env → default (none).
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		jobName := p.Job
		if jobName == "" {
			jobName = "cafeload"
		}
		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))

		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: jobName,
			Tags:    extraTags,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: backend=%v job_name=%v tags=%v", backendName, jobName, extraTags)
			metrics.SetBackend(b)

			// Close() stops the periodic flush loop, then performs a final Flush().
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}

	case "", "none":
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx := context.Background()
	start := time.Now()

	if err := run(ctx, p, inputPath, *verbose); err != nil {
		log.Fatalf("%v", err)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// run connects the configured backend, prepares the database and schema,
// reads the input batch, and executes the load.
func run(ctx context.Context, p config.Pipeline, inputOverride string, verbose bool) error {
	cfg, err := p.StorageConfig()
	if err != nil {
		return err
	}

	if verbose {
		log.Printf("pipeline: source=%s storage=%s database=%s", p.Source.Kind, cfg.Kind, cfg.Database)
	}

	repo, err := storage.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.EnsureDatabase(ctx); err != nil {
		return fmt.Errorf("ensure database: %w", err)
	}
	if err := repo.EnsureSchema(ctx, storage.Tables()); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	path := inputOverride
	if path == "" && p.Source.File != nil {
		path = p.Source.File.Path
	}
	if path == "" {
		return fmt.Errorf("no input file: set -input or source.file.path")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	batch, err := parserjson.ReadBatch(f)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		log.Printf("input %s: empty batch, nothing to do", path)
		return nil
	}

	l := &loader.Loader{
		Repo:             repo,
		Logger:           log.Default(),
		IgnoreDuplicates: ignoreSet(p.Storage.DB.IgnoreDuplicates),
		BatchSize:        p.Runtime.BatchSize,
	}

	sum, err := l.Load(ctx, batch)
	if err != nil {
		return err
	}

	log.Printf("loaded products=%d locations=%d basket_items=%d transactions=%d",
		sum.Products, sum.Locations, sum.BasketItems, sum.Transactions)
	return nil
}

// ignoreSet turns the config list into the loader's table set. Nil keeps the
// loader's default behavior.
func ignoreSet(tables []string) map[string]bool {
	if len(tables) == 0 {
		return nil
	}
	set := make(map[string]bool, len(tables))
	for _, t := range tables {
		set[t] = true
	}
	return set
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
