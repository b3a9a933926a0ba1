package automirror

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/PlanktoScope/automirror/internal/clients/cli"
	"github.com/PlanktoScope/automirror/pkg/versioning"
)

// State is a state of the [Controller]'s failover state machine.
type State int

const (
	StateSelectingMirror State = iota
	StateListing
	StateApplying
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSelectingMirror:
		return "selecting mirror"
	case StateListing:
		return "listing"
	case StateApplying:
		return "applying"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MirrorFailure records why a mirror was abandoned.
type MirrorFailure struct {
	Mirror Mirror
	Err    error
}

// Outcome summarizes what the [Controller] did.
type Outcome struct {
	// MirrorsTried lists the mirrors drawn from the pool, in the order they were drawn.
	MirrorsTried []Mirror
	// Failures lists the mirrors which were abandoned because of retryable errors.
	Failures []MirrorFailure
	// Found lists the candidates found on the mirror which was used.
	Found []Artifact
	// Applied lists the versions which were committed, in the order they were committed.
	Applied []versioning.Version
}

// Controller searches mirrors for releases newer than a baseline and applies them. Mirrors are
// drawn from the pool one at a time until one of them can be listed; every candidate found on that
// mirror is then applied in ascending version order. A retryable error while listing or fetching
// from a mirror abandons that mirror for the next one; any other error aborts the search.
type Controller struct {
	Pool    *MirrorPool
	Catalog *Catalog
	Applier Applier
	// DryRun stops the search once candidates have been listed, without applying them.
	DryRun bool
	Out    io.Writer
}

// Run runs the state machine to completion. An exhausted pool ends the run successfully, possibly
// with nothing applied. The returned Outcome is valid even when an error is returned.
func (c *Controller) Run(
	ctx context.Context, indent int, baseline versioning.Version,
) (outcome Outcome, err error) {
	var (
		state   = StateSelectingMirror
		mirror  Mirror
		listing *Listing
		next    int
		// floor is the highest version known to be in the repository; it rises as candidates are
		// applied, so that a mirror drawn after a failed fetch won't offer an applied version again.
		floor = baseline
	)
	closeListing := func() {
		if listing == nil {
			return
		}
		if cerr := listing.Close(); cerr != nil {
			cli.Warnf(indent+1, c.Out, "couldn't close session with %s: %s", listing.Mirror, cerr)
		}
		listing = nil
	}
	defer closeListing()

	for {
		switch state {
		case StateSelectingMirror:
			if err = ctx.Err(); err != nil {
				state = StateFailed
				continue
			}
			mirror, err = c.Pool.Draw()
			if errors.Is(err, ErrPoolExhausted) {
				err = nil
				cli.IndentedFprintln(indent, c.Out, "No more mirrors to try")
				state = StateDone
				continue
			}
			if err != nil {
				state = StateFailed
				continue
			}
			outcome.MirrorsTried = append(outcome.MirrorsTried, mirror)
			cli.IndentedFprintf(indent, c.Out, "Trying mirror %s%s...\n", mirror.Host, mirror.Path)
			state = StateListing

		case StateListing:
			listing, err = c.Catalog.ListAbove(ctx, indent+1, mirror, floor)
			if err != nil {
				state = c.handleMirrorError(indent+1, &outcome, mirror, err)
				if state != StateFailed {
					err = nil
				}
				continue
			}
			outcome.Found = listing.Candidates
			next = 0
			switch {
			case len(listing.Candidates) == 0:
				cli.IndentedFprintln(indent+1, c.Out, "No new version found")
				state = StateDone
			case c.DryRun:
				cli.IndentedFprintln(indent+1, c.Out, "Not applying releases in a dry run")
				state = StateDone
			default:
				state = StateApplying
			}

		case StateApplying:
			if next >= len(listing.Candidates) {
				state = StateDone
				continue
			}
			artifact := listing.Candidates[next]
			if err = c.Applier.Apply(ctx, indent+1, listing, artifact); err != nil {
				closeListing()
				state = c.handleMirrorError(indent+1, &outcome, mirror, err)
				if state != StateFailed {
					err = nil
				}
				continue
			}
			outcome.Applied = append(outcome.Applied, artifact.Version)
			floor = artifact.Version
			next++

		case StateDone:
			return outcome, nil

		case StateFailed:
			return outcome, err

		default:
			return outcome, errors.Errorf("unknown state %d", state)
		}
	}
}

// handleMirrorError decides what to do after an error from a mirror, and returns the next state.
func (c *Controller) handleMirrorError(
	indent int, outcome *Outcome, mirror Mirror, err error,
) State {
	class := Classify(err)
	cli.IndentedFprintf(indent, c.Out, "Error (%s) with mirror %s: %s\n", class, mirror.Host, err)
	if class != Retryable {
		return StateFailed
	}
	outcome.Failures = append(outcome.Failures, MirrorFailure{Mirror: mirror, Err: err})
	return StateSelectingMirror
}
