package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/exchange-ledger/internal/config"
	"github.com/sudo-init-do/exchange-ledger/internal/db"
	"github.com/sudo-init-do/exchange-ledger/internal/domain"
)

// set_fee_rate assigns or clears an account's fixed fee percent.
// Usage:
//
//	go run cmd/adminutil/set_fee_rate/main.go -account <id> -category EXCHANGE -percent 1.5
//	go run cmd/adminutil/set_fee_rate/main.go -account <id> -category EXCHANGE -clear
func main() {
	account := flag.String("account", "", "Account id")
	category := flag.String("category", "", "EXCHANGE, WITHDRAW_BANK or WITHDRAW_CRYPTO")
	percent := flag.String("percent", "", "Fixed fee percent, 0 <= p < 100")
	clearRate := flag.Bool("clear", false, "Remove the fixed rate so the account selects bundles")
	flag.Parse()

	cat := domain.Category(strings.ToUpper(*category))
	if *account == "" || !cat.Valid() || (*percent == "") == !*clearRate {
		log.Fatalf("usage: go run cmd/adminutil/set_fee_rate/main.go -account <id> -category EXCHANGE (-percent 1.5 | -clear)")
	}

	// DB_* settings come from the same environment as the API
	ctx := context.Background()
	if _, err := db.Init(ctx, config.LoadDB(), nil); err != nil {
		log.Fatalf("database init failed: %v", err)
	}
	defer db.Conn.Close()

	repo := db.NewFeeRepository(db.Conn)
	if *clearRate {
		if err := repo.ClearFixedRate(ctx, *account, cat); err != nil {
			log.Fatalf("failed to clear fee rate: %v", err)
		}
		fmt.Printf("Fixed %s rate cleared for %s.\n", cat, *account)
		return
	}

	p, err := decimal.NewFromString(*percent)
	if err != nil || p.IsNegative() || p.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		log.Fatalf("percent must be a decimal in [0, 100): %q", *percent)
	}
	if err := repo.SetFixedRate(ctx, *account, cat, p); err != nil {
		log.Fatalf("failed to set fee rate: %v", err)
	}
	fmt.Printf("Fixed %s rate for %s set to %s%%.\n", cat, *account, p)
}
