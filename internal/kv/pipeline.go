// internal/kv/pipeline.go
//
// Post-game effect pipeline.
// When a session terminates, a fixed ordered sequence of external
// effects runs: history row, progression commit, library unlock,
// reward + XP, profile refresh. Steps are independently retriable; a
// failed step is logged and the sequence continues, so a broken
// history write can never block the reward grant.

package kv

import (
	"context"

	"github.com/rs/zerolog/log"
)

// pipelineStep is one named effect in the post-game sequence.
type pipelineStep struct {
	name string
	run  func(ctx context.Context) error
}

// runPipeline executes steps in order, logging and continuing on
// failure. It never returns an error.
func runPipeline(ctx context.Context, userID string, steps []pipelineStep) {
	for _, st := range steps {
		if st.run == nil {
			continue
		}
		if err := st.run(ctx); err != nil {
			log.Warn().Err(err).
				Str("user", userID).
				Str("step", st.name).
				Msg("kv post-game step failed")
		}
	}
}
