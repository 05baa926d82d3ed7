package services

import (
	"context"
	"fmt"
	"log/slog"
)

type step struct {
	name string
	run  func(ctx context.Context) error
}

// cascade is an ordered list of independently atomic steps. A failing first
// step aborts the whole operation untouched. A later failure stops the
// cascade and is logged; earlier steps are not rolled back, so callers
// repair by re-invoking, which every step after the first tolerates.
type cascade struct {
	name  string
	steps []step
	log   *slog.Logger
}

func (c cascade) run(ctx context.Context) error {
	for i, s := range c.steps {
		err := s.run(ctx)
		if err == nil {
			continue
		}
		if i == 0 {
			return err
		}
		c.log.Error("cascade stopped part way",
			"cascade", c.name,
			"step", s.name,
			"completed", i,
			"err", err,
		)
		return fmt.Errorf("%s: %s: %w", c.name, s.name, err)
	}
	return nil
}
