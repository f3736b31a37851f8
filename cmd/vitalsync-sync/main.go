package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/claude/vitalsync/internal/healthstore"
	"github.com/claude/vitalsync/internal/models"
	"github.com/claude/vitalsync/internal/recovery"
	"github.com/claude/vitalsync/internal/remote"
	syncer "github.com/claude/vitalsync/internal/sync"
	"github.com/claude/vitalsync/internal/syncstate"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "VitalSync server URL (e.g. https://vitalsync.tail1234.ts.net)")
	apiKey := flag.String("api-key", os.Getenv("VITALSYNC_API_KEY"), "API key for upload endpoints (defaults to $VITALSYNC_API_KEY)")
	healthDB := flag.String("health-db", "", "path to the local health mirror database (required)")
	stateDir := flag.String("state-dir", "", "sync state directory (defaults to ~/.vitalsync-sync)")
	timezone := flag.String("timezone", "Local", "IANA time zone for daily bucketing")
	force := flag.Bool("force", false, "sync even if one completed within the last hour")
	resetBackfill := flag.Bool("reset-backfill", false, "clear backfill flags so the next run re-pulls full history")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("vitalsync-sync", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *healthDB == "" || *serverURL == "" {
		fmt.Fprintf(os.Stderr, "Usage: vitalsync-sync -server <URL> -health-db <path> [-force] [-reset-backfill]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	*serverURL = strings.TrimRight(*serverURL, "/")

	loc, err := time.LoadLocation(*timezone)
	if err != nil {
		log.Error("invalid timezone", "timezone", *timezone, "error", err)
		os.Exit(1)
	}

	dir := *stateDir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Error("failed to get home directory", "error", err)
			os.Exit(1)
		}
		dir = filepath.Join(home, ".vitalsync-sync")
	}

	reader, err := healthstore.Open(*healthDB)
	if err != nil {
		log.Error("failed to open health database", "path", *healthDB, "error", err)
		os.Exit(1)
	}
	defer reader.Close()

	state, err := syncstate.OpenSQLite(dir)
	if err != nil {
		log.Error("failed to open sync state", "dir", dir, "error", err)
		os.Exit(1)
	}
	defer state.Close()

	client := remote.NewClient(*serverURL, *apiKey, log)
	calc := recovery.New(reader, loc, log)
	orch := syncer.New(reader, client, calc, state, loc, log)

	ctx := context.Background()

	if *resetBackfill {
		if err := orch.ResetBackfill(ctx); err != nil {
			log.Error("failed to reset backfill flags", "error", err)
			os.Exit(1)
		}
		log.Info("backfill flags cleared; next run pulls full history")
	}

	if *force {
		err = orch.Sync(ctx)
	} else {
		err = orch.SyncIfNeeded(ctx)
	}
	if err != nil {
		log.Error("sync failed", "error", err)
		os.Exit(1)
	}

	printStatus(orch.Status())
	log.Info("sync complete")
}

func printStatus(status syncer.Status) {
	fmt.Println()
	fmt.Println("=== Sync Summary ===")
	if snap := status.LastSnapshot; snap != nil {
		fmt.Printf("  Recovery:   %d (%s) on %s\n", snap.Score, snap.State, snap.Date)
	}
	for _, metric := range models.SyncedMetrics {
		r, ok := status.Metrics[metric]
		if !ok {
			continue
		}
		line := fmt.Sprintf("  %-8s window %4dd, local %4d days, uploaded %4d", metric, r.WindowDays, r.LocalDays, r.Uploaded)
		if r.BackfillDone {
			line += "  [backfilled]"
		}
		if r.Error != "" {
			line += "  ERROR: " + r.Error
		}
		fmt.Println(line)
	}
	fmt.Println()
}
