package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/slot-booking/internal/appointment"
	"github.com/hackgods/slot-booking/internal/config"
	"github.com/hackgods/slot-booking/internal/db"
	"github.com/hackgods/slot-booking/internal/logging"
)

var specializations = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

type seedOptions struct {
	doctors        int
	slotsPerDoctor int
	days           int
	seed           uint64
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts seedOptions

	root := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with doctors and future bookable slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
				return seed(ctx, appointment.NewCatalog(appointment.NewPgRepository(pool)), opts, logger)
			})
		},
	}

	root.Flags().IntVar(&opts.doctors, "doctors", 20, "number of doctors to create")
	root.Flags().IntVar(&opts.slotsPerDoctor, "slots-per-doctor", 30, "slots to create per doctor")
	root.Flags().IntVar(&opts.days, "days", 14, "spread slots over this many days from tomorrow")
	root.Flags().Uint64Var(&opts.seed, "seed", 0, "faker seed, 0 picks a random one")

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations only",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), func(context.Context, *pgxpool.Pool, zerolog.Logger) error { return nil })
		},
	})

	return root
}

func withDatabase(ctx context.Context, fn func(context.Context, *pgxpool.Pool, zerolog.Logger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}
	logger := logging.New(cfg.Env).With().Str("service", "seed").Logger()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(connectCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MinConns: cfg.PGMinConns})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	applied, err := db.Migrate(connectCtx, pool)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info().Int("migrations_applied", applied).Msg("schema up to date")

	return fn(ctx, pool, logger)
}

func seed(ctx context.Context, catalog *appointment.Catalog, opts seedOptions, logger zerolog.Logger) error {
	if opts.doctors <= 0 || opts.slotsPerDoctor <= 0 || opts.days <= 0 {
		return fmt.Errorf("--doctors, --slots-per-doctor and --days must be > 0")
	}

	faker := gofakeit.New(opts.seed)
	tomorrow := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)

	logger.Info().Int("doctors", opts.doctors).Int("slots_per_doctor", opts.slotsPerDoctor).Msg("seeding")

	var slots int
	for i := 0; i < opts.doctors; i++ {
		doctor, err := catalog.CreateDoctor(ctx, appointment.NewDoctor{
			Name:           "Dr. " + faker.Name(),
			Specialization: faker.RandomString(specializations),
			Email:          faker.Email(),
			PhoneNumber:    faker.Phone(),
		})
		if err != nil {
			return fmt.Errorf("create doctor: %w", err)
		}

		for j := 0; j < opts.slotsPerDoctor; j++ {
			day := faker.Number(0, opts.days-1)
			// Half hour grid between 09:00 and 16:30.
			halfHour := faker.Number(18, 33)
			start := tomorrow.Add(time.Duration(day)*24*time.Hour + time.Duration(halfHour)*30*time.Minute)

			if _, err := catalog.CreateSlot(ctx, appointment.NewSlot{
				DoctorID:  doctor.ID,
				StartTime: start,
				CostCents: int64(faker.Number(5, 30)) * 1000,
			}); err != nil {
				return fmt.Errorf("create slot: %w", err)
			}
			slots++
		}

		logger.Debug().Str("doctor", doctor.Name).Msg("doctor seeded")
	}

	logger.Info().Int("doctors", opts.doctors).Int("slots", slots).Msg("seed complete")
	return nil
}
