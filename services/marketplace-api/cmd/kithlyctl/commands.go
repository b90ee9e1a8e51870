package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/kithly/marketplace/pkg/db"
	"github.com/kithly/marketplace/pkg/mq"
	"github.com/kithly/marketplace/services/marketplace-api/internal/events"
	"github.com/kithly/marketplace/services/marketplace-api/internal/payout"
	"github.com/kithly/marketplace/services/marketplace-api/internal/repository"
	"github.com/kithly/marketplace/services/marketplace-api/internal/service"
)

func openDB(v *viper.Viper) (*gorm.DB, error) {
	dsn := v.GetString("database-url")
	if dsn == "" {
		return nil, errors.New("database url is required (--database-url or DATABASE_URL)")
	}
	return db.Open(dsn)
}

func openEmitter(v *viper.Viper) (*events.Emitter, func(), error) {
	pub, err := mq.Open(v.GetString("event-bus"), v.GetString("rabbit-url"), v.GetString("event-exchange"), v.GetString("nats-url"))
	if err != nil {
		return nil, nil, err
	}
	return events.NewEmitter(pub), func() { _ = pub.Close() }, nil
}

func migrateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the marketplace tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			gdb, err := openDB(v)
			if err != nil {
				return err
			}
			if err := repository.Migrate(gdb); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration complete")
			return nil
		},
	}
}

func payoutsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "Release funds for collected orders",
	}
	run := &cobra.Command{
		Use:   "run",
		Short: "Transfer net proceeds of completed orders to their shops",
		Example: `  kithlyctl payouts run --limit 100
  OMISE_SECRET_KEY=skey_xxx kithlyctl payouts run`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			gdb, err := openDB(v)
			if err != nil {
				return err
			}
			emitter, closePub, err := openEmitter(v)
			if err != nil {
				return err
			}
			defer closePub()

			var t payout.Transferer = payout.LogTransferer{}
			if v.GetBool("dry-run") {
				fmt.Fprintln(cmd.OutOrStdout(), "dry run: no money will move")
			} else if sec := v.GetString("omise-secret-key"); sec != "" {
				ot, err := payout.NewOmiseTransferer(v.GetString("omise-public-key"), sec)
				if err != nil {
					return err
				}
				t = ot
			} else {
				return errors.New("omise secret key is required unless --dry-run is set")
			}

			svc := service.NewPayoutSvc(repository.NewOrderRepo(gdb), repository.NewShopRepo(gdb), t, emitter)
			ctx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration("timeout"))
			defer cancel()
			rep, err := svc.Run(ctx, v.GetInt("limit"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "paid out=%d skipped=%d failed=%d unconfirmed=%d\n", rep.PaidOut, rep.Skipped, rep.Failed, rep.Unconfirmed)
			// let queued events flush
			time.Sleep(500 * time.Millisecond)
			return nil
		},
	}
	run.Flags().Int("limit", 50, "maximum orders per run")
	run.Flags().Bool("dry-run", false, "log transfers instead of calling the payout provider")
	run.Flags().Duration("timeout", 5*time.Minute, "overall run timeout")
	run.Flags().String("omise-public-key", "", "env OMISE_PUBLIC_KEY")
	run.Flags().String("omise-secret-key", "", "env OMISE_SECRET_KEY")
	cmd.AddCommand(run)
	return cmd
}

func ordersCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Order maintenance",
	}
	expire := &cobra.Command{
		Use:     "expire",
		Short:   "Cancel orders that never received payment",
		Example: `  kithlyctl orders expire --older-than 48h`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			olderThan := v.GetDuration("older-than")
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			gdb, err := openDB(v)
			if err != nil {
				return err
			}
			emitter, closePub, err := openEmitter(v)
			if err != nil {
				return err
			}
			defer closePub()

			svc := service.NewOrderSvc(
				repository.NewOrderRepo(gdb), repository.NewShopRepo(gdb),
				repository.NewProductRepo(gdb), repository.NewUserRepo(gdb),
				emitter, 0,
			)
			n, err := svc.ExpireStale(cmd.Context(), olderThan, v.GetInt("limit"))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %d stale orders\n", n)
			time.Sleep(500 * time.Millisecond)
			return nil
		},
	}
	expire.Flags().Duration("older-than", 24*time.Hour, "age after which an unpaid order is cancelled")
	expire.Flags().Int("limit", 500, "maximum orders per run")
	cmd.AddCommand(expire)
	return cmd
}
