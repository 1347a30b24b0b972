/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"chainguard.dev/feedstocktasks/actionsrun"
	"chainguard.dev/feedstocktasks/clonemanager"
	"chainguard.dev/feedstocktasks/task"
	"github.com/chainguard-dev/clog"
	"gopkg.in/yaml.v3"
)

// CommandRenderer rerenders by running an external command in the checkout.
type CommandRenderer struct {
	// Command is the program and its arguments.
	Command []string
	// CommitMessage is recorded for the finalize phase when the command
	// succeeds.
	CommitMessage string
	// Output receives the command's output. Defaults to os.Stdout.
	Output io.Writer
}

var _ Renderer = (*CommandRenderer)(nil)

// NewCommandRenderer splits command on whitespace.
func NewCommandRenderer(command, commitMessage string) *CommandRenderer {
	return &CommandRenderer{Command: strings.Fields(command), CommitMessage: commitMessage}
}

// Rerender implements Renderer. A command that fails is reported through
// RerenderError rather than err.
func (r *CommandRenderer) Rerender(ctx context.Context, c *clonemanager.Clone) (task.RerenderResults, error) {
	if len(r.Command) == 0 {
		return task.RerenderResults{}, errors.New("rerender command is empty")
	}
	out := writerOr(r.Output)

	end := actionsrun.Group(out, "rerender")
	err := runIn(ctx, c.Dir(), out, out, r.Command)
	end()

	if err != nil {
		clog.FromContext(ctx).Errorf("Rerender command failed: %v", err)
		return task.RerenderResults{
			RerenderError: true,
			InfoMessage:   fmt.Sprintf("The rerender command `%s` failed: %v.", strings.Join(r.Command, " "), err),
		}, nil
	}

	changed, err := c.IsDirty()
	if err != nil {
		return task.RerenderResults{}, err
	}
	res := task.RerenderResults{Changed: changed}
	if changed {
		res.CommitMessage = r.CommitMessage
	}
	return res, nil
}

// CommandLinter lints by running an external command that prints a YAML (or
// JSON) report with lints and hints lists. The command may exit non-zero
// when it found lints.
type CommandLinter struct {
	Command []string
	// Output receives the command's stderr. Defaults to os.Stdout.
	Output io.Writer
}

var _ Linter = (*CommandLinter)(nil)

// NewCommandLinter splits command on whitespace.
func NewCommandLinter(command string) *CommandLinter {
	return &CommandLinter{Command: strings.Fields(command)}
}

type lintReport struct {
	Lints []string `yaml:"lints"`
	Hints []string `yaml:"hints"`
}

// Lint implements Linter.
func (l *CommandLinter) Lint(ctx context.Context, dir string) ([]string, []string, error) {
	if len(l.Command) == 0 {
		return nil, nil, errors.New("lint command is empty")
	}
	out := writerOr(l.Output)

	var stdout bytes.Buffer
	end := actionsrun.Group(out, "lint")
	runErr := runIn(ctx, dir, &stdout, out, l.Command)
	end()

	if len(bytes.TrimSpace(stdout.Bytes())) == 0 {
		if runErr != nil {
			return nil, nil, runErr
		}
		return nil, nil, errors.New("linter produced no report")
	}

	var report lintReport
	if err := yaml.Unmarshal(stdout.Bytes(), &report); err != nil {
		return nil, nil, errors.Join(fmt.Errorf("parsing lint report: %w", err), runErr)
	}
	if runErr != nil {
		clog.FromContext(ctx).Infof("Linter exited with %v", runErr)
	}
	if report.Lints == nil {
		report.Lints = []string{}
	}
	if report.Hints == nil {
		report.Hints = []string{}
	}
	return report.Lints, report.Hints, nil
}

// DockerPuller pulls images with the docker CLI.
type DockerPuller struct {
	// Binary defaults to "docker".
	Binary string
	// Output receives the command's output. Defaults to os.Stdout.
	Output io.Writer
}

var _ ImagePuller = (*DockerPuller)(nil)

// Pull implements ImagePuller.
func (p *DockerPuller) Pull(ctx context.Context, image string) error {
	bin := p.Binary
	if bin == "" {
		bin = "docker"
	}
	out := writerOr(p.Output)

	end := actionsrun.Group(out, "docker image pull")
	defer end()
	return runIn(ctx, "", out, out, []string{bin, "pull", image})
}

func runIn(ctx context.Context, dir string, stdout, stderr io.Writer, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	clog.FromContext(ctx).Infof("Running %s", strings.Join(argv, " "))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("running %s: %w", argv[0], err)
	}
	return nil
}

func writerOr(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
