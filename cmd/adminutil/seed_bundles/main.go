package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/exchange-ledger/internal/config"
	"github.com/sudo-init-do/exchange-ledger/internal/db"
	"github.com/sudo-init-do/exchange-ledger/internal/domain"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// defaultBundles is the schedule a fresh install starts with.
func defaultBundles() []domain.FeeBundle {
	return []domain.FeeBundle{
		{ID: "exchange-standard", Category: domain.CategoryExchange, Name: "Standard", Percent: *dec("1")},
		{ID: "exchange-large", Category: domain.CategoryExchange, Name: "Large volume", Percent: *dec("0.5"), RangeMin: dec("10000")},
		{ID: "bank-standard", Category: domain.CategoryWithdrawBank, Name: "Standard", Percent: *dec("1.5")},
		{ID: "bank-express", Category: domain.CategoryWithdrawBank, Name: "Express", Percent: *dec("2.5"), RangeMax: dec("5000")},
		{ID: "crypto-standard", Category: domain.CategoryWithdrawCrypto, Name: "Standard", Percent: *dec("1")},
		{ID: "crypto-small", Category: domain.CategoryWithdrawCrypto, Name: "Small transfer", Percent: *dec("2"), RangeMax: dec("0.01")},
	}
}

// seed_bundles upserts fee bundles from a JSON file, or the defaults.
// Usage:
//
//	go run cmd/adminutil/seed_bundles/main.go [-file bundles.json]
func main() {
	file := flag.String("file", "", "JSON array of fee bundles; defaults are used when empty")
	flag.Parse()

	bundles := defaultBundles()
	if *file != "" {
		raw, err := os.ReadFile(*file)
		if err != nil {
			log.Fatalf("failed to read %s: %v", *file, err)
		}
		bundles = nil
		if err := json.Unmarshal(raw, &bundles); err != nil {
			log.Fatalf("failed to parse %s: %v", *file, err)
		}
	}

	ctx := context.Background()
	if _, err := db.Init(ctx, config.LoadDB(), nil); err != nil {
		log.Fatalf("database init failed: %v", err)
	}
	defer db.Conn.Close()

	repo := db.NewFeeRepository(db.Conn)
	for _, b := range bundles {
		if !b.Category.Valid() || b.ID == "" {
			log.Fatalf("invalid bundle %+v", b)
		}
		if err := repo.UpsertBundle(ctx, b); err != nil {
			log.Fatalf("failed to save bundle %s: %v", b.ID, err)
		}
		fmt.Printf("Bundle %s (%s, %s%%) saved.\n", b.ID, b.Category, b.Percent)
	}
}
