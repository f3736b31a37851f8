package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/claude/vitalsync/internal/export"
	"github.com/claude/vitalsync/internal/healthstore"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	healthDB := flag.String("health-db", "", "path to the local health mirror database (required)")
	dryRun := flag.Bool("dry-run", false, "parse and count without writing to the mirror")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("vitalsync-import", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *healthDB == "" || flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Usage: vitalsync-import -health-db <path> [-dry-run] <export.json> [...]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	store, err := healthstore.Open(*healthDB)
	if err != nil {
		log.Error("failed to open health database", "path", *healthDB, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	// Importing stands in for the platform authorization flow: record read
	// grants so the sync engine can read what was just written.
	if !*dryRun {
		if err := store.Grant(ctx, healthstore.ReadKinds...); err != nil {
			log.Error("failed to record read grants", "error", err)
			os.Exit(1)
		}
	}

	if *dryRun {
		log.Info("DRY RUN mode — files will be parsed but not written")
	}

	imp := export.New(store, *dryRun, log)

	total := export.Stats{}
	for _, path := range flag.Args() {
		stats, err := imp.ImportFile(ctx, path)
		if err != nil {
			log.Error("import failed", "file", path, "error", err)
			os.Exit(1)
		}
		total.Readings += stats.Readings
		total.SleepSamples += stats.SleepSamples
		total.Skipped = append(total.Skipped, stats.Skipped...)
	}

	fmt.Println()
	fmt.Println("=== Import Summary ===")
	fmt.Printf("  Files:          %d\n", flag.NArg())
	fmt.Printf("  Metric samples: %d\n", total.Readings)
	fmt.Printf("  Sleep samples:  %d\n", total.SleepSamples)
	if len(total.Skipped) > 0 {
		fmt.Printf("\n  Skipped (unrecognized):\n")
		for _, s := range total.Skipped {
			fmt.Printf("    - %s\n", s)
		}
	}
	fmt.Println()
	log.Info("import complete")
}
