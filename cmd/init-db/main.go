package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"growth_quest/internal/config"
	"growth_quest/internal/storage"
	"growth_quest/internal/utils"
)

func main() {
	envFile := flag.String("env", ".env", "path of the .env file")
	since := flag.Duration("since", 24*time.Hour, "summary window")
	recent := flag.Int("recent", 0, "also print this many recent generation records")
	flag.Parse()

	fmt.Println("Growth Quest - Generation Store Initialization")
	fmt.Println(strings.Repeat("=", 48))

	cfg, err := config.LoadFile(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.URL == "" {
		fmt.Fprintf(os.Stderr, "ERROR: DATABASE_URL must be set\n")
		os.Exit(1)
	}

	fmt.Println("Connecting to database...")
	db, err := storage.NewDB(storage.DBConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		QueryTimeout:    cfg.Database.QueryTimeout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Health(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Database connection established")

	repo := db.NewGenerationRepository()
	fmt.Println("Ensuring generation_records schema...")
	if err := repo.EnsureSchema(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Schema ready")

	summaries, err := repo.SummarizeByProvider(ctx, time.Now().Add(-*since))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to summarize records: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nGenerations in the last %s:\n", *since)
	if len(summaries) == 0 {
		fmt.Println("  none")
	} else {
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  PROVIDER\tTOTAL\tSUCCESS\tFALLBACKS\tFAILED\tAVG LATENCY\tTOKENS IN/OUT")
		for _, s := range summaries {
			fmt.Fprintf(tw, "  %s\t%d\t%.0f%%\t%d\t%d\t%.0fms\t%d/%d\n",
				s.Provider, s.Total, s.SuccessRate()*100, s.Fallbacks, s.Failed, s.AvgLatencyMS, s.InputTokens, s.OutputTokens)
		}
		tw.Flush()
	}

	pool := db.GetStats()
	fmt.Printf("\nConnection pool: %d open, %d in use, %d idle (max %d), %d wait(s) totalling %s\n",
		pool.OpenConnections, pool.InUse, pool.Idle, pool.MaxOpenConnections, pool.WaitCount, pool.WaitDuration)

	if *recent <= 0 {
		return
	}

	records, err := repo.ListRecent(ctx, "", *recent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to list records: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nMost recent %d record(s):\n", len(records))
	for _, r := range records {
		line := fmt.Sprintf("  %s  %-8s %s/%s %dms", r.CreatedAt.Format(time.RFC3339), r.Status, r.Provider, r.Model, r.LatencyMS)
		if failed := utils.StringPtrValue(r.FailedProvider); failed != "" {
			line += " (after " + failed + " failed)"
		}
		if msg := utils.StringPtrValue(r.ErrorMessage); msg != "" {
			line += " error=" + msg
		}
		fmt.Println(line)
	}
}
