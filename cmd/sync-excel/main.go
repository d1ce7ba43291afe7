package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"changewindow-tracker/internal/config"
	"changewindow-tracker/internal/importer"
	"changewindow-tracker/internal/logger"
	"changewindow-tracker/internal/syncclient"
)

func main() {
	var (
		file    = flag.String("file", "", "path to the change-window workbook (.xlsx)")
		baseURL = flag.String("url", envOr("TRACKER_URL", "http://localhost:8080"), "tracker base URL")
		token   = flag.String("token", os.Getenv("TRACKER_TOKEN"), "bearer token for the tracker API")
		timeout = flag.Duration("timeout", 2*time.Minute, "overall sync timeout")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: sync-excel -file <workbook.xlsx> [-url <tracker>] [-token <jwt>]")
		os.Exit(2)
	}

	cfg := config.Load()
	log, err := logger.New(cfg.Log.Level, "console", "sync-excel")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	workbook, err := os.Open(*file)
	if err != nil {
		log.Fatal("Failed to open workbook", zap.Error(err))
	}
	defer workbook.Close()

	parser := importer.NewParser(cfg.Tracker.Groups, log)
	client := syncclient.NewClient(*baseURL, *token, parser, log)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	summary, err := client.SyncWorkbook(ctx, workbook)
	if err != nil {
		log.Fatal("Sync failed", zap.Error(err))
	}

	fmt.Printf("Synced %d activities from %d sheets (%d failed, %d pruned)\n",
		summary.Pushed, len(summary.Sheets), summary.Failed, summary.Pruned)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
