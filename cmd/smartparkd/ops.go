package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	smartpark "github.com/ishaan2-svg/parkingawssystem"
	"github.com/ishaan2-svg/parkingawssystem/internal/core"
	"github.com/ishaan2-svg/parkingawssystem/internal/layout"
	"github.com/ishaan2-svg/parkingawssystem/internal/version"
)

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
	return err
}

func newInitCommand(baseLogger pslog.Logger) *cobra.Command {
	var seedDemo, seedOccupancy bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialise the layout and user documents without starting the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			logger := commandLogger(baseLogger)
			cfg := bindConfig(logger)
			cfg.SweepInterval = -1
			cfg.MetricsListen = ""
			cfg.SeedDemoUsers = seedDemo
			cfg.SeedOccupancy = seedOccupancy
			engine, err := smartpark.NewEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer engine.Close(ctx)
			return printJSON(cmd, engine.Health(ctx))
		},
	}
	cmd.Flags().BoolVar(&seedDemo, "seed-demo-users", false, "register the demo accounts on first init")
	cmd.Flags().BoolVar(&seedOccupancy, "seed-occupancy", false, "mark a random subset of a fresh grid occupied")
	return cmd
}

func newBookCommand(baseLogger pslog.Logger) *cobra.Command {
	var spotID, userID string
	var duration time.Duration
	var cost float64
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Reserve a spot for a user; with no --spot the closest available spot is taken",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, baseLogger, func(ctx context.Context, engine *smartpark.Engine) error {
				svc := engine.Service()
				if spotID == "" {
					closest, err := svc.FindClosestSpot(ctx)
					if err != nil {
						return err
					}
					spotID = closest.Spot.ID
				}
				now := time.Now().In(svc.Location())
				booking, err := svc.CreateBooking(ctx, core.CreateBookingCommand{
					SpotID: spotID,
					UserID: userID,
					Start:  now,
					End:    now.Add(duration),
					Cost:   cost,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, booking)
			})
		},
	}
	cmd.Flags().StringVar(&spotID, "spot", "", "spot to reserve, e.g. 1-05-10 (default: closest available)")
	cmd.Flags().StringVar(&userID, "user", "", "user id the booking belongs to")
	cmd.Flags().DurationVar(&duration, "duration", time.Hour, "lease duration")
	cmd.Flags().Float64Var(&cost, "cost", 0, "booking cost")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newReleaseCommand(baseLogger pslog.Logger) *cobra.Command {
	var bookingID, status string
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Release a booking and free its spot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, baseLogger, func(ctx context.Context, engine *smartpark.Engine) error {
				booking, err := engine.Service().ReleaseBooking(ctx, bookingID, layout.BookingStatus(status))
				if err != nil {
					return err
				}
				return printJSON(cmd, booking)
			})
		},
	}
	cmd.Flags().StringVar(&bookingID, "booking", "", "booking id to release")
	cmd.Flags().StringVar(&status, "status", string(layout.BookingCompleted), "terminal status (completed|cancelled|expired)")
	_ = cmd.MarkFlagRequired("booking")
	return cmd
}

func newClosestCommand(baseLogger pslog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "closest",
		Short: "Find the closest available spot to the main entrance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, baseLogger, func(ctx context.Context, engine *smartpark.Engine) error {
				closest, err := engine.Service().FindClosestSpot(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, closest)
			})
		},
	}
}

func newSpotCommand(baseLogger pslog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "spot <spot-id>",
		Short: "Show the current state of one spot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, baseLogger, func(ctx context.Context, engine *smartpark.Engine) error {
				spot, err := engine.Service().GetSpot(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, spot)
			})
		},
	}
}

func newBookingsCommand(baseLogger pslog.Logger) *cobra.Command {
	var userID string
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "List bookings, either every active lease or one user's history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, baseLogger, func(ctx context.Context, engine *smartpark.Engine) error {
				svc := engine.Service()
				if userID != "" {
					bookings, err := svc.UserBookings(ctx, userID)
					if err != nil {
						return err
					}
					return printJSON(cmd, bookings)
				}
				if !activeOnly {
					return fmt.Errorf("specify --user or --active")
				}
				return printJSON(cmd, svc.ActiveBookings(ctx))
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "list this user's booking history")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "list every active booking")
	return cmd
}

func newRegisterCommand(baseLogger pslog.Logger) *cobra.Command {
	var name, email, phone, vehicle, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new user account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, baseLogger, func(ctx context.Context, engine *smartpark.Engine) error {
				user, err := engine.Users().Register(ctx, name, email, phone, vehicle, password)
				if err != nil {
					return err
				}
				// Never echo credentials back.
				user.Password = ""
				return printJSON(cmd, user)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&vehicle, "vehicle", "", "vehicle registration, e.g. KA-01-HH-1234")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("vehicle")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLoginCommand(baseLogger pslog.Logger) *cobra.Command {
	var vehicle, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate by vehicle registration and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, baseLogger, func(ctx context.Context, engine *smartpark.Engine) error {
				user, err := engine.Users().FindByCredentials(ctx, vehicle, password)
				if err != nil {
					return err
				}
				user.Password = ""
				return printJSON(cmd, user)
			})
		},
	}
	cmd.Flags().StringVar(&vehicle, "vehicle", "", "vehicle registration")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("vehicle")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newStatsCommand(baseLogger pslog.Logger) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show occupancy statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, baseLogger, func(ctx context.Context, engine *smartpark.Engine) error {
				stats, err := engine.Service().Stats(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "spots:     %s total, %s available, %s occupied (%.2f%%)\n",
					humanize.Comma(int64(stats.TotalSpots)),
					humanize.Comma(int64(stats.AvailableSpots)),
					humanize.Comma(int64(stats.OccupiedSpots)),
					stats.OccupancyRate)
				fmt.Fprintf(out, "bookings:  %s active, %s all time\n",
					humanize.Comma(int64(stats.ActiveBookings)),
					humanize.Comma(int64(stats.TotalBookings)))
				fmt.Fprintf(out, "users:     %s registered\n", humanize.Comma(int64(stats.RegisteredUsers)))
				fmt.Fprintf(out, "updated:   %s\n", stats.LastUpdated)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON instead of text")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the smartparkd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "smartparkd %s\n", version.Current())
			return err
		},
	}
}
