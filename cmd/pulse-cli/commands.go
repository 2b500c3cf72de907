package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haolin-w/pulse/internal/symbols"
)

const commandTimeout = 60 * time.Second

func newSummaryCmd() *cobra.Command {
	var sections string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the market summary tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newCLIApp()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			if flagRefresh {
				a.MarketService.ClearCaches()
			}
			var requested []string
			if sections != "" {
				requested = strings.Split(sections, ",")
			}
			summary, err := a.MarketService.GetMarketSummary(ctx, requested)
			if err != nil {
				return err
			}
			for _, name := range symbols.SectionNames {
				quotes := summary.Section(name)
				if quotes == nil {
					continue
				}
				renderSection(os.Stdout, a.Registry, name, quotes)
			}
			if summary.MetalsSession != "" {
				fmt.Printf("metals session: %s (%s ET)\n\n", summary.MetalsSession, summary.MetalsSessionET)
			}
			renderEarnings(os.Stdout, "Upcoming earnings (US)", summary.EarningsUpcoming)
			renderEarnings(os.Stdout, "Upcoming earnings (TW)", summary.EarningsUpcomingTW)
			renderSkipped(os.Stdout, summary.SkippedSymbols)
			return nil
		},
	}
	cmd.Flags().StringVar(&sections, "sections", "", "comma-separated section names (default all)")
	return cmd
}

func newRatiosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ratios",
		Short: "Show the price-ratio summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newCLIApp()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			summary, err := a.RatioService.GetRatiosSummary(ctx, flagRefresh)
			if err != nil {
				return err
			}
			renderRatios(os.Stdout, summary)
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var period string
	var tail int
	cmd := &cobra.Command{
		Use:   "history SYMBOL",
		Short: "Show close history for one symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newCLIApp()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			series, err := a.MarketService.GetStockHistory(ctx, args[0], period)
			if err != nil {
				return err
			}
			renderHistory(os.Stdout, series, tail)
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "6mo", "history period (1mo, 3mo, 6mo, 1y, 2y, 5y)")
	cmd.Flags().IntVar(&tail, "tail", 20, "show only the last N rows, 0 for all")
	return cmd
}

func newInstitutionalCmd() *cobra.Command {
	var tail int
	cmd := &cobra.Command{
		Use:   "institutional",
		Short: "Show TWSE three-institution year-to-date flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newCLIApp()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			ytd, err := a.InstitutionalService.GetYearToDate(ctx, flagRefresh)
			if err != nil {
				return err
			}
			renderInstitutional(os.Stdout, ytd, tail)
			return nil
		},
	}
	cmd.Flags().IntVar(&tail, "tail", 10, "show only the last N trading days, 0 for all")
	return cmd
}
