package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"valuations/internal/config"
	"valuations/internal/services"
	"valuations/internal/storage"
)

// 清理命令：删除早于指定天数的报表审计记录（report_records）。
// 用法：go run ./cmd/purge-reports [-config config.yaml] [-days 90] [-dry-run] [-confirm]
func main() {
	configPath := flag.String("config", "", "path to config file (default: ./config.{yaml,yml,json})")
	days := flag.Int("days", 90, "delete records older than this many days")
	dryRun := flag.Bool("dry-run", false, "do not delete, just report the count")
	confirm := flag.Bool("confirm", false, "skip interactive confirmation prompt")
	flag.Parse()

	if *days <= 0 {
		log.Fatal("-days must be positive")
	}

	cfg := config.Load()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	if !cfg.MySQL.Enable {
		log.Fatal("mysql.enable must be true in config to purge report records")
	}

	db, err := storage.InitMySQL(cfg)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer storage.CloseMySQL(db)

	audit := services.NewAuditService(db)
	cutoff := time.Now().AddDate(0, 0, -*days)
	ctx := context.Background()

	n, err := audit.PurgeBefore(ctx, cutoff, true)
	if err != nil {
		log.Fatalf("count records: %v", err)
	}
	if n == 0 {
		fmt.Println("No report records older than cutoff.")
		return
	}
	if *dryRun {
		fmt.Printf("Dry run: %d records created before %s would be deleted\n", n, cutoff.Format(time.RFC3339))
		return
	}

	if !*confirm {
		fmt.Printf("\nAbout to delete %d report records created before %s.\n", n, cutoff.Format(time.RFC3339))
		fmt.Print("Type 'yes' to continue: ")
		var response string
		fmt.Scanln(&response)
		if response != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	deleted, err := audit.PurgeBefore(ctx, cutoff, false)
	if err != nil {
		log.Fatalf("delete records: %v", err)
	}
	fmt.Printf("purge complete: %d records deleted\n", deleted)
}
