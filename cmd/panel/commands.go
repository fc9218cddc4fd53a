package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/artpar/panel/internal/core/domain"
	"github.com/artpar/panel/internal/core/pricing"
	"github.com/artpar/panel/internal/shell/billing"
	"github.com/artpar/panel/internal/shell/catalog"
	"github.com/artpar/panel/internal/shell/store"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "panel",
		Short: "VPS and RDP hosting panel",
		Long: `panel serves the hosting panel API: plan pricing, server allocation
and the server lifecycle.

Quick start:
  panel migrate up                      # Create or upgrade the database
  panel serve                           # Start the API server
  panel quote rdp-standard --period yearly --promo SAVE20`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	load := func() (*Config, error) {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			return nil, &ServerError{Op: "LoadConfig", Err: err, ExitCode: ExitConfigError}
		}
		return cfg, nil
	}

	cmd.AddCommand(serveCmd(load))
	cmd.AddCommand(migrateCmd(load))
	cmd.AddCommand(quoteCmd(load))
	cmd.AddCommand(catalogCmd(load))
	cmd.AddCommand(versionCmd())

	return cmd
}

type configLoader func() (*Config, error)

// =============================================================================
// serve
// =============================================================================

func serveCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			logger := SetupLogger(cfg, os.Stdout)
			logger.Info("starting panel", "version", Version, "build_time", BuildTime)

			server, err := NewServer(cfg, logger)
			if err != nil {
				logger.Error("failed to create server", "error", err)
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := server.Start(ctx); err != nil {
				logger.Error("server error", "error", err)
				return err
			}
			return nil
		},
	}
}

// =============================================================================
// migrate
// =============================================================================

func migrateCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back database migrations",
		Long:      "migrate up applies all pending migrations; migrate down rolls back one.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			if err := ensureDatabaseDir(cfg.Database.DSN); err != nil {
				return &ServerError{Op: "migrate", Err: err, ExitCode: ExitDatabaseError}
			}
			status, err := store.Migrate(cfg.Database.DSN, args[0])
			if err != nil {
				return &ServerError{Op: "migrate", Err: err, ExitCode: ExitDatabaseError}
			}
			fmt.Fprintf(c.OutOrStdout(), "database at version %d (dirty=%t)\n", status.Version, status.Dirty)
			return nil
		},
	}
}

// =============================================================================
// quote
// =============================================================================

func quoteCmd(load configLoader) *cobra.Command {
	var (
		period string
		promo  string
	)

	cmd := &cobra.Command{
		Use:   "quote <plan-id>",
		Short: "Price a plan",
		Long:  "Prints the itemized price of a plan. Without --period every billing period is shown.",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			quoter := billing.NewQuoter(s, cfg.Rounding(), SetupLogger(cfg, io.Discard))
			ctx := c.Context()

			var quotes []pricing.Breakdown
			if period == "" {
				quotes, err = quoter.QuoteAll(ctx, args[0])
			} else {
				var p pricing.BillingPeriod
				if p, err = pricing.ParseBillingPeriod(period); err != nil {
					return err
				}
				var b pricing.Breakdown
				b, err = quoter.Quote(ctx, args[0], p, promo)
				if errors.Is(err, domain.ErrInvalidPromoCode) {
					fmt.Fprintf(c.ErrOrStderr(), "warning: %v; charging full price\n", err)
					err = nil
				}
				quotes = []pricing.Breakdown{b}
			}
			if err != nil {
				return err
			}

			printQuotes(c.OutOrStdout(), quotes)
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "billing period: monthly, quarterly or yearly")
	cmd.Flags().StringVar(&promo, "promo", "", "promo code")
	return cmd
}

func printQuotes(w io.Writer, quotes []pricing.Breakdown) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tSUBTOTAL\tPERIOD DISCOUNT\tPROMO\tPROMO DISCOUNT\tTOTAL\tPER MONTH")
	for _, q := range quotes {
		promo := q.PromoCode
		if promo == "" {
			promo = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			q.Period,
			cents(q.Subtotal),
			cents(q.PeriodDiscountAmount),
			promo,
			cents(q.PromoDiscountAmount),
			cents(q.Total),
			q.EffectiveMonthlyRate.Shift(-2).StringFixed(2),
		)
	}
	tw.Flush()
}

// cents formats minor units as a decimal amount.
func cents(amount int64) string {
	return decimal.New(amount, -2).StringFixed(2)
}

// =============================================================================
// catalog
// =============================================================================

func catalogCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Import or export plans, locations, OS templates and promo codes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Upsert a YAML catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := importCatalog(c.Context(), s, args[0], SetupLogger(cfg, c.ErrOrStderr())); err != nil {
				return &ServerError{Op: "catalog import", Err: err, ExitCode: ExitCatalogError}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Write the stored catalog as YAML to stdout",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			s, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			f, err := catalog.Export(c.Context(), s)
			if err != nil {
				return &ServerError{Op: "catalog export", Err: err, ExitCode: ExitDatabaseError}
			}
			return f.Write(c.OutOrStdout())
		},
	})

	return cmd
}

// =============================================================================
// version
// =============================================================================

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		Run: func(c *cobra.Command, _ []string) {
			fmt.Fprintf(c.OutOrStdout(), "panel %s (built %s)\n", Version, BuildTime)
		},
	}
}
