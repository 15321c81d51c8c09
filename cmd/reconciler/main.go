// Command reconciler runs the feed repair tooling: backfill of historical
// reviews and follows, and purge of whole activity categories.
//
// Usage:
//
//	reconciler backfill [-since-days=30] [-batch-size=100] [-dry-run]
//	reconciler purge -type=review|follow [-hard] [-dry-run] [-yes]
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/feed/internal/config"
	"example.com/feed/internal/domain"
	persistence "example.com/feed/internal/persistence/postgres"
	"example.com/feed/internal/reconcile"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	graph := persistence.NewFollowGraph(pool)
	service := domain.NewService(repo, graph)
	reconciler := reconcile.NewReconciler(persistence.NewHistorySource(pool), service, repo)

	switch os.Args[1] {
	case "backfill":
		runBackfill(ctx, reconciler, os.Args[2:])
	case "purge":
		runPurge(ctx, reconciler, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: reconciler backfill [-since-days=30] [-batch-size=100] [-dry-run]")
	fmt.Fprintln(os.Stderr, "       reconciler purge -type=review|follow [-hard] [-dry-run] [-yes]")
}

func runBackfill(ctx context.Context, reconciler *reconcile.Reconciler, args []string) {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	sinceDays := fs.Int("since-days", 30, "how many days of history to replay")
	batchSize := fs.Int("batch-size", 100, "history page size")
	dryRun := fs.Bool("dry-run", false, "report what would be processed without writing")
	_ = fs.Parse(args)

	since := time.Now().AddDate(0, 0, -*sinceDays)
	log.Printf("backfilling activities since %s (batch-size=%d, dry-run=%v)", since.Format(time.RFC3339), *batchSize, *dryRun)

	report, err := reconciler.Backfill(ctx, since, *batchSize, *dryRun)
	if err != nil {
		log.Fatalf("backfill aborted: %v", err)
	}

	log.Printf("reviews: %d processed, %d failed", report.ReviewsProcessed, report.ReviewsFailed)
	log.Printf("follows: %d processed, %d failed", report.FollowsProcessed, report.FollowsFailed)
	if !report.DryRun {
		log.Printf("records written: %d (already-distributed events write nothing)", report.RecordsWritten)
	}
	if report.ReviewsFailed > 0 || report.FollowsFailed > 0 {
		os.Exit(1)
	}
}

func runPurge(ctx context.Context, reconciler *reconcile.Reconciler, args []string) {
	fs := flag.NewFlagSet("purge", flag.ExitOnError)
	typeName := fs.String("type", "", "activity type to purge (review or follow)")
	hard := fs.Bool("hard", false, "permanently delete instead of soft delete (cannot be undone)")
	dryRun := fs.Bool("dry-run", false, "report the affected count without deleting")
	yes := fs.Bool("yes", false, "skip the interactive confirmation")
	_ = fs.Parse(args)

	activityType := domain.ActivityType(*typeName)
	mode := reconcile.PurgeSoft
	if *hard {
		mode = reconcile.PurgeHard
	}

	count, err := reconciler.PreviewPurge(ctx, activityType, mode)
	if err != nil {
		log.Fatalf("purge preview failed: %v", err)
	}

	log.Printf("purge would affect %d %s activities (%s)", count, activityType, mode)
	if *dryRun {
		return
	}
	if count == 0 {
		log.Printf("nothing to purge")
		return
	}

	confirmed := *yes
	if !confirmed {
		if *hard {
			fmt.Println("WARNING: hard delete cannot be undone")
		}
		confirmed = promptConfirmation()
	}
	if !confirmed && *hard {
		log.Fatalf("purge refused: %v", reconcile.ErrConfirmationRequired)
	}
	if !confirmed {
		log.Printf("cancelled")
		return
	}

	report, err := reconciler.Purge(ctx, activityType, mode, confirmed)
	if err != nil {
		log.Fatalf("purge failed: %v", err)
	}
	log.Printf("purged %d %s activities (%s)", report.Affected, report.Type, report.Mode)
}

func promptConfirmation() bool {
	fmt.Print("Are you sure you want to continue? (yes/no): ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(scanner.Text()), "yes")
}
