package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"busbar/pkg/ratelimit"
	"busbar/services/rating-svc/internal/domain"
	"busbar/services/rating-svc/internal/engine"
	"busbar/services/rating-svc/internal/repository"
	"busbar/services/rating-svc/internal/service"
)

type resolveFlags struct {
	w, t, b, angle, a, icc, force, poles float64
	maxForce                             bool
}

func newResolveCmd(g *globalFlags) *cobra.Command {
	f := &resolveFlags{}

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve one rating through the cache and the engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}

			pc := domain.NewConfiguration(f.w, f.t, f.b, f.angle, f.a, f.icc, f.force, f.poles)
			if err := pc.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			repos, err := repository.NewRepositories(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer repos.Close()

			var opts []engine.Option
			if cfg.Engine.RateLimit.Enabled {
				limiter, err := ratelimit.New(ratelimit.FromConfig(&cfg.Engine.RateLimit))
				if err != nil {
					return err
				}
				defer limiter.Close()
				opts = append(opts, engine.WithLimiter(limiter))
			}
			client, err := engine.NewClient(&cfg.Engine, repos.Ratings, opts...)
			if err != nil {
				return err
			}
			resolver := service.NewRatingResolver(repos.Ratings, client, &cfg.ForceSearch, nil)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if f.maxForce {
				result, err := resolver.ResolveMaxForce(ctx, pc)
				if err != nil {
					return err
				}
				return enc.Encode(result)
			}

			rating, found, err := resolver.Resolve(ctx, pc)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no rating for %s", pc.Normalize().Key())
			}
			return enc.Encode(map[string]string{"L": rating})
		},
	}

	fl := cmd.Flags()
	fl.Float64Var(&f.w, "w", 0, "bar width (mm)")
	fl.Float64Var(&f.t, "t", 0, "bar thickness (mm)")
	fl.Float64Var(&f.b, "b", 0, "bars per phase")
	fl.Float64Var(&f.angle, "angle", 0, "clamp angle")
	fl.Float64Var(&f.a, "a", 0, "clamp spacing (mm)")
	fl.Float64Var(&f.icc, "icc", 0, "short-circuit current (kA)")
	fl.Float64Var(&f.force, "force", 0, "mechanical force")
	fl.Float64Var(&f.poles, "poles", 0, "number of phases")
	fl.BoolVar(&f.maxForce, "max-force", false, "search downward for the highest force the engine accepts")
	for _, name := range []string{"w", "t", "b", "force", "poles"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}
