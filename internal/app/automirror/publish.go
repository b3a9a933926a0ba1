package automirror

import (
	"context"
	"io"
	"time"

	"github.com/PlanktoScope/automirror/internal/clients/cli"
)

// Pusher pushes a branch and all tags to a remote.
type Pusher interface {
	PushBranchAndTags(
		ctx context.Context, indent int, remote, branch string, progress io.Writer,
	) (updated bool, err error)
}

// PublishGate decides whether to push the results of a run to the remote.
type PublishGate struct {
	Repo   Pusher
	Remote string
	Branch string
	// Timeout bounds the push, unless it's zero.
	Timeout time.Duration
	// Disabled prevents any push.
	Disabled bool
	Out      io.Writer
	// Err receives warnings about failed pushes.
	Err io.Writer
}

// Publish pushes the branch and all tags to the remote if any releases were applied. A failed push
// is reported as a warning, since the new commits remain in the local repository; the returned
// value indicates whether the push succeeded.
func (g *PublishGate) Publish(ctx context.Context, indent int, applied int) (pushed bool) {
	if applied == 0 {
		return false
	}
	if g.Disabled {
		cli.IndentedFprintf(
			indent, g.Out, "Not pushing %d new release(s) to %s, since pushing is disabled\n",
			applied, g.Remote,
		)
		return false
	}

	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	cli.IndentedFprintf(indent, g.Out, "Pushing %s and tags to %s...\n", g.Branch, g.Remote)
	updated, err := g.Repo.PushBranchAndTags(ctx, indent+1, g.Remote, g.Branch, g.Out)
	if err != nil {
		cli.Warnf(indent, g.Err, "%s", err)
		return false
	}
	if !updated {
		cli.IndentedFprintf(indent+1, g.Out, "%s is already up-to-date\n", g.Remote)
	}
	return true
}
