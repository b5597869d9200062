// Command colocacionctl runs maintenance operations against the same
// database, redis and ERP the API server uses.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/xelth-com/colocacion/internal/app"
	"github.com/xelth-com/colocacion/internal/buildinfo"
	"github.com/xelth-com/colocacion/internal/config"
	"github.com/xelth-com/colocacion/internal/logger"
	"github.com/xelth-com/colocacion/internal/sync"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		logger.Logger.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func newApp() *cli.App {
	strategyFlag := &cli.StringFlag{
		Name:  "strategy",
		Usage: "conflict strategy: erp_wins, local_wins, timestamp or manual",
	}

	return &cli.App{
		Name:    "colocacionctl",
		Usage:   "warehouse placement maintenance",
		Version: buildinfo.Version(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "warn", EnvVars: []string{"LOG_LEVEL"}},
		},
		Before: func(c *cli.Context) error {
			logger.Init("colocacionctl", true)
			logger.SetLevel(c.String("log-level"))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "sync-full",
				Usage: "sweep stale products against the ERP",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "max", Usage: "maximum products to process (0 uses SYNC_MAX_ITEMS)"},
					strategyFlag,
				},
				Action: withApp(func(c *cli.Context, a *app.App) error {
					strategy, err := sync.ParseStrategy(c.String("strategy"))
					if err != nil {
						return err
					}
					res, err := a.Sync.FullSync(c.Context, c.Int("max"), strategy)
					if err != nil {
						return err
					}
					return printJSON(res)
				}),
			},
			{
				Name:      "sync-product",
				Usage:     "reconcile one product with the ERP",
				ArgsUsage: "<product-id>",
				Flags:     []cli.Flag{strategyFlag},
				Action: withApp(func(c *cli.Context, a *app.App) error {
					id, err := productID(c)
					if err != nil {
						return err
					}
					strategy, err := sync.ParseStrategy(c.String("strategy"))
					if err != nil {
						return err
					}
					res, err := a.Sync.SyncProduct(c.Context, id, "cli", strategy)
					if perr := printJSON(res); perr != nil {
						return perr
					}
					return err
				}),
			},
			{
				Name:      "push-product",
				Usage:     "write the local location and stock of a product to the ERP",
				ArgsUsage: "<product-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "change", Value: string(sync.ChangeBoth), Usage: "location, stock or both"},
				},
				Action: withApp(func(c *cli.Context, a *app.App) error {
					id, err := productID(c)
					if err != nil {
						return err
					}
					change, err := sync.ParseChangeType(c.String("change"))
					if err != nil {
						return err
					}
					res, err := a.Sync.PushToERP(c.Context, id, change, "cli", "cli")
					if perr := printJSON(res); perr != nil {
						return perr
					}
					return err
				}),
			},
			{
				Name:  "check-erp",
				Usage: "test the ERP connection",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					conn := a.Sync.CheckConnectivity(c.Context)
					if err := printJSON(conn); err != nil {
						return err
					}
					if !conn.Connected {
						return cli.Exit("ERP unreachable", 2)
					}
					return nil
				}),
			},
			{
				Name:  "queue-status",
				Usage: "show print queue depth and counters",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					st, err := a.Queue.Status(c.Context)
					if err != nil {
						return err
					}
					return printJSON(st)
				}),
			},
			{
				Name:  "queue-reset-stats",
				Usage: "zero the print queue counters",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					return a.Queue.ResetStats(c.Context)
				}),
			},
			{
				Name:  "reap",
				Usage: "roll back expired updates and recover stale print leases now",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					updates, err := a.Optimistic.CleanupExpired(c.Context)
					if err != nil {
						return err
					}
					leases, err := a.Queue.CleanupExpired(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("rolled back %d updates, recovered %d leases\n", updates, leases)
					return nil
				}),
			},
			{
				Name:  "purge-labels",
				Usage: "delete labels printed before the retention window",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					n, err := a.PurgeLabels(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("purged %d labels\n", n)
					return nil
				}),
			},
			{
				Name:  "cache-clear",
				Usage: "drop every cached product and the cache counters",
				Action: withApp(func(c *cli.Context, a *app.App) error {
					n, err := a.Cache.Clear(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("removed %d keys\n", n)
					return nil
				}),
			},
		},
	}
}

// withApp loads configuration and builds the service graph around action
func withApp(action func(*cli.Context, *app.App) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a, err := app.New(c.Context, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return action(c, a)
	}
}

func productID(c *cli.Context) (int64, error) {
	if c.NArg() != 1 {
		return 0, cli.Exit("expected exactly one product id", 1)
	}
	var id int64
	if _, err := fmt.Sscan(c.Args().First(), &id); err != nil || id <= 0 {
		return 0, cli.Exit(fmt.Sprintf("invalid product id %q", c.Args().First()), 1)
	}
	return id, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
