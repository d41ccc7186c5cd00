package main

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/profile"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/TheBitDrifter/depot"
	"github.com/TheBitDrifter/depot/internal/statsd"
)

type position struct {
	X, Y float64
}

type velocity struct {
	X, Y float64
}

type health struct {
	Current, Max int32
}

type churnOptions struct {
	entities int
	rounds   int
	batch    int
	profile  string
	statsd   string
}

func NewChurnCmd() *cobra.Command {
	var opts churnOptions
	cmd := &cobra.Command{
		Use:   "churn",
		Short: "Create, mutate, query and destroy entities in rounds, then print registry stats as JSON",
		Example: "depotbench churn --entities 100000 --rounds 10 --profile cpu\n" +
			"DEPOT_THREAD_SAFE=true depotbench churn --config depot.yaml",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if opts.statsd != "" {
				if err := statsd.Init(opts.statsd, []string{"app:depotbench"}); err != nil {
					return err
				}
				defer statsd.Close()
			}
			switch opts.profile {
			case "":
			case "cpu":
				defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
			case "mem":
				defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
			default:
				return eris.Errorf("unknown profile %q, want cpu or mem", opts.profile)
			}

			r, err := depot.Factory.NewRegistry(cfg)
			if err != nil {
				return err
			}
			start := time.Now()
			if err := churn(cmd.Context(), r, opts); err != nil {
				return err
			}
			r.LogStats(zerolog.InfoLevel)
			stats := r.EmitMetrics()

			out, err := json.MarshalIndent(struct {
				Elapsed string              `json:"elapsed"`
				Stats   depot.RegistryStats `json:"stats"`
			}{time.Since(start).String(), stats}, "", "  ")
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(out, '\n'))
			return err
		},
	}
	cmd.Flags().IntVar(&opts.entities, "entities", 10_000, "entities created per round")
	cmd.Flags().IntVar(&opts.rounds, "rounds", 5, "number of churn rounds")
	cmd.Flags().IntVar(&opts.batch, "batch", 512, "entities per ParallelEach batch")
	cmd.Flags().StringVar(&opts.profile, "profile", "", "write a cpu or mem profile to the working directory")
	cmd.Flags().StringVar(&opts.statsd, "statsd", "", "statsd address to report metrics to")
	return cmd
}

// churn runs opts.rounds rounds of: create, queue velocity on half the
// entities during iteration, integrate in parallel, strip velocity, destroy.
func churn(ctx context.Context, r *depot.Registry, opts churnOptions) error {
	pos := depot.FactoryNewComponent[position]()
	vel := depot.FactoryNewComponent[velocity]()
	hp := depot.FactoryNewComponent[health]()
	if err := r.RegisterComponents(pos, vel, hp); err != nil {
		return err
	}
	moving, err := depot.Factory.NewQueryBuilder().With(pos, vel).Build(r)
	if err != nil {
		return err
	}
	wounded, err := depot.Factory.NewQueryBuilder().With(hp).Without(vel).Build(r)
	if err != nil {
		return err
	}

	for round := range opts.rounds {
		if _, err := r.CreateEntities(opts.entities, pos); err != nil {
			return eris.Wrapf(err, "round %d", round)
		}
		if err := r.EnqueueCreate(opts.entities/10, pos, hp); err != nil {
			return err
		}

		cursor := depot.Factory.NewCursor(depot.Factory.NewQuery().And(pos), r)
		i := 0
		for cursor.Next() {
			if i%2 == 0 {
				if err := r.EnqueueAdd(cursor.CurrentEntity(), vel, velocity{X: 1, Y: float64(i % 7)}); err != nil {
					cursor.Reset()
					return err
				}
			}
			i++
		}
		if err := cursor.Err(); err != nil {
			return eris.Wrapf(err, "round %d: queued changes", round)
		}

		err = r.ParallelEach(ctx, moving, opts.batch, func(_ context.Context, e depot.EntityHandle) error {
			p, err := pos.Get(r, e)
			if err != nil {
				return err
			}
			v, err := vel.Get(r, e)
			if err != nil {
				return err
			}
			p.X += v.X
			p.Y += v.Y
			return nil
		})
		if err != nil {
			return eris.Wrapf(err, "round %d: integrate", round)
		}

		if _, err := r.Execute(wounded); err != nil {
			return err
		}
		movers, err := r.Query(pos, vel)
		if err != nil {
			return err
		}
		for _, e := range movers[:len(movers)/2] {
			if err := r.EnqueueRemove(e, vel); err != nil {
				return err
			}
		}
		if err := r.Flush(); err != nil {
			return err
		}

		all, err := r.Query(pos)
		if err != nil {
			return err
		}
		if _, err := r.DestroyEntities(all...); err != nil {
			return err
		}
		r.Optimize()
	}
	return nil
}
