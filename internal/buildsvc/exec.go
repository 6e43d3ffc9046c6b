package buildsvc

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"github.com/srcforge/srcpm/internal/errs"
)

// runCommand executes argv in dir with env appended to the current
// environment, capturing combined stdout+stderr. A non-zero exit raises an
// External error naming the command line and code; if timeout > 0 the
// subprocess is canceled on expiry. In DryRun mode the command is logged
// and a sentinel is returned without spawning anything (spec.md §4.7).
func (b *Builder) runCommand(ctx context.Context, argv []string, dir string, env []string, timeout time.Duration) (string, error) {
	line := strings.Join(argv, " ")
	if b.DryRun {
		b.log().Infof("dry-run: %s (dir=%s)", line, dir)
		return "(dry-run)", nil
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	b.log().Debugf("running: %s (dir=%s)", line, dir)
	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return buf.String(), xerrors.Errorf("command %q: %w: timed out after %s", line, errs.External, timeout)
	}
	if err != nil {
		return buf.String(), xerrors.Errorf("command %q: %w: %v: %s", line, errs.External, err, buf.String())
	}
	return buf.String(), nil
}

// runSteps runs each step in order, stopping at the first failure.
func (b *Builder) runSteps(ctx context.Context, steps [][]string, dir string, env []string) error {
	for _, step := range steps {
		if _, err := b.runCommand(ctx, step, dir, env, b.Timeout); err != nil {
			return err
		}
	}
	return nil
}
