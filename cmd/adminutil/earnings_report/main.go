package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sudo-init-do/freehub/internal/config"
	"github.com/sudo-init-do/freehub/internal/logger"
	"github.com/sudo-init-do/freehub/internal/marketplace"
	"github.com/sudo-init-do/freehub/internal/store"
)

func main() {
	providerID := flag.String("provider", "", "ID of the provider to report on")
	email := flag.String("email", "", "Email of the provider to report on (instead of -provider)")
	flag.Parse()

	if *providerID == "" && *email == "" {
		log.Fatalf("usage: go run cmd/adminutil/earnings_report/main.go -provider <id> | -email user@example.com")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, closeStore, err := store.Open(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("failed to open store", "error", err)
	}
	defer closeStore()

	if *providerID == "" {
		u, err := st.GetUserByEmail(ctx, *email)
		if err != nil {
			lg.Fatal("no user found", "email", *email, "error", err)
		}
		*providerID = u.ID
	}

	earnings, err := marketplace.NewProjection(st).EarningsSummary(ctx, *providerID)
	if err != nil {
		lg.Fatal("failed to compute earnings", "provider_id", *providerID, "error", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tFINISHED\tPRICE")
	for _, r := range earnings.History {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Title, r.UpdatedAt.Format(time.DateOnly), r.Price.StringFixed(2))
	}
	_ = tw.Flush()
	fmt.Printf("\nProvider %s: %d finished, total %s\n", *providerID, earnings.Count, earnings.Total.StringFixed(2))
}
