// Package main runs one simulated arbitrage execution end to end through
// the real engine on in-memory stores and scripted venues, printing the
// step trace and the final P&L.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/biodigitss-hash/CEXMasterP/internal/domain"
	"github.com/biodigitss-hash/CEXMasterP/internal/simulation"
)

func main() {
	capital := flag.Float64("capital", 1000, "Quote capital to invest")
	buyPrice := flag.Float64("buy-price", 2000, "Ask price on the buy venue")
	sellPrice := flag.Float64("sell-price", 2020, "Opening bid on the sell venue")
	targetSpread := flag.Float64("target-spread", 1.4, "Sell trigger spread percent")
	ticksUntilTarget := flag.Int("ticks-until-target", 3, "Monitor ticks before the bid reaches the target")
	maxWaitTicks := flag.Int("max-wait-ticks", 0, "Monitoring budget in ticks; set below ticks-until-target to force the timeout failsafe (0 = generous default)")
	interval := flag.Duration("interval", 10*time.Millisecond, "Scaled poll interval")
	verbose := flag.Bool("verbose", false, "Log engine internals")
	flag.Parse()

	logger := log.New(os.Stdout, "[simulate] ", log.LstdFlags)
	var engineOut io.Writer = io.Discard
	if *verbose {
		engineOut = os.Stdout
	}
	engineLog := log.New(engineOut, "[engine] ", log.LstdFlags)

	runner := simulation.NewRunner(simulation.Options{
		Capital:          decimal.NewFromFloat(*capital),
		BuyPrice:         decimal.NewFromFloat(*buyPrice),
		SellPrice:        decimal.NewFromFloat(*sellPrice),
		TargetSpreadPct:  decimal.NewFromFloat(*targetSpread),
		TicksUntilTarget: *ticksUntilTarget,
		MaxWaitTicks:     *maxWaitTicks,
		Interval:         *interval,
		Logger:           engineLog,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := runner.Run(ctx)
	if err != nil {
		logger.Fatalf("Simulation failed: %v", err)
	}

	opp := result.Opportunity
	fmt.Printf("Opportunity: buy %s on %s at %s, sell on %s at %s (spread %s%%)\n",
		opp.TokenSymbol, opp.BuyVenue, opp.BuyPrice, opp.SellVenue, opp.SellPrice, opp.SpreadPct)

	fmt.Println("\nStep trace:")
	for _, step := range result.Steps {
		fmt.Printf("  %-24s %s\n", step.Step, step.Outcome)
	}

	exec := result.Execution
	fmt.Printf("\nFinal state:  %s\n", exec.State)
	fmt.Printf("Monitor exit: %s\n", result.MonitorExit)
	if exec.Profit.Valid {
		fmt.Printf("Profit:       %s (on %s capital)\n", exec.Profit.Decimal, exec.Capital)
	}
	if exec.State != domain.StateCompleted {
		logger.Fatalf("Execution ended %s: %s", exec.State, exec.FailureReason)
	}
}
