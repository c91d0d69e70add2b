package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/atmx/classroom-exchange/internal/metrics"
	"github.com/atmx/classroom-exchange/internal/model"
	"github.com/atmx/classroom-exchange/internal/orders"
	"github.com/atmx/classroom-exchange/internal/sim"
	"github.com/atmx/classroom-exchange/internal/tape"
)

func generateCmd() *cobra.Command {
	var start, end, out string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a daily market tape for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			from, err := time.Parse(sim.DateLayout, start)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			to, err := time.Parse(sim.DateLayout, end)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}
			if to.Before(from) {
				return fmt.Errorf("--end %s is before --start %s", end, start)
			}

			ref, err := loadReference(cfg.Paths.SecurityMaster)
			if err != nil {
				return err
			}
			t, err := sim.Generate(cfg.SimConfig(), from, to, ref)
			if err != nil {
				return err
			}
			prices, news, err := tape.WriteTape(out, t)
			if err != nil {
				return err
			}
			metrics.BarsTotal.Add(float64(len(t.Bars)))
			slog.Info("tape generated",
				"start", start,
				"end", end,
				"bars", len(t.Bars),
				"news", len(t.News),
				"prices", prices,
				"news_path", news,
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "2025-01-06", "First date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "2025-03-31", "Last date (YYYY-MM-DD), inclusive")
	cmd.Flags().StringVarP(&out, "out", "o", "data/market", "Output directory for prices.csv and news.jsonl")
	return cmd
}

func tickCmd() *cobra.Command {
	var ordersPath string
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Advance the market one bar and execute submitted orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if ordersPath == "" {
				ordersPath = cfg.Paths.OrdersJSON
			}
			ctx := cmd.Context()

			parser, err := orders.NewParser(cfg.Market.Universe)
			if err != nil {
				return err
			}
			subs, err := orders.LoadSubmissions(ordersPath)
			if errors.Is(err, orders.ErrNoSubmissions) {
				slog.Warn("no submissions file, ticking without orders", "path", ordersPath)
			} else if err != nil {
				return err
			}
			parsed, rejected := parser.ToOrders(subs)
			metrics.InvalidSubmissions.Add(float64(len(rejected)))
			for _, r := range rejected {
				slog.Warn("submission rejected", "issue", r.Submission.Number, "user", r.Submission.User.Login, "err", r.Err)
			}

			d, err := openDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()
			runner, err := d.newRunner()
			if err != nil {
				return err
			}

			res, err := runner.Run(ctx, parsed.Orders())
			if err != nil {
				return err
			}
			if len(rejected) > 0 {
				entries := make([]model.TradeLogEntry, len(rejected))
				for i, r := range rejected {
					entries[i] = r.LogEntry(res.Timestamp)
				}
				if err := d.store.AppendTrades(ctx, entries); err != nil {
					return fmt.Errorf("log rejected submissions: %w", err)
				}
			}
			filled := 0
			for _, e := range res.Trades {
				if e.Filled() {
					filled++
				}
			}
			fmt.Printf("tick %s regime=%s bars=%d news=%d orders=%d filled=%d rejected_submissions=%d\n",
				res.Timestamp.Format(tape.TimestampLayout), res.Regime, len(res.Bars), len(res.News),
				len(res.Trades), filled, len(rejected))
			return nil
		},
	}
	cmd.Flags().StringVar(&ordersPath, "orders", "", "Submissions JSON (defaults to paths.orders_json)")
	return cmd
}

func stepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "step",
		Short: "Advance the market one bar without executing orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			d, err := openDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()
			runner, err := d.newRunner()
			if err != nil {
				return err
			}
			if d.lock != nil {
				release, err := d.lock.Acquire(ctx)
				if err != nil {
					return err
				}
				defer release()
			}

			res, st, _, err := runner.Advance(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("step %s regime=%s bars=%d news=%d\n",
				res.Timestamp.Format(tape.TimestampLayout), st.Regime, len(res.Bars), len(res.News))
			return nil
		},
	}
}

func parseOrderCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "parse-order",
		Short: "Validate one issue-form body and print the order as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var body []byte
			if file == "" || file == "-" {
				body, err = io.ReadAll(cmd.InOrStdin())
			} else {
				body, err = os.ReadFile(file)
			}
			if err != nil {
				return err
			}

			parser, err := orders.NewParser(cfg.Market.Universe)
			if err != nil {
				return err
			}
			parsed, err := parser.Parse(string(body))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Order any    `json:"order"`
				Notes string `json:"notes,omitempty"`
			}{parsed.Order, parsed.Notes})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Issue body file; stdin when empty or -")
	return cmd
}
