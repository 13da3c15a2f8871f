package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"krisa-backup/internal/logging"
)

// CommandResult carries the outcome of one external command invocation
type CommandResult struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// Failed reports whether the command exited non-zero
func (r *CommandResult) Failed() bool {
	return r.ExitCode != 0
}

// CommandOptions controls how a command's streams are wired
type CommandOptions struct {
	// Stdin, when set, is piped to the command's standard input
	Stdin io.Reader
	// StdoutFile, when set, receives the command's standard output
	// directly, so a large pg_dump never passes through process memory
	StdoutFile string
}

// CommandRunner executes external commands and reports typed results.
// A non-zero exit is data, not an error: callers classify it against their
// tolerated-pattern tables.
type CommandRunner interface {
	Run(ctx context.Context, argv []string, opts CommandOptions) (*CommandResult, error)
}

// execRunner implements CommandRunner with os/exec
type execRunner struct {
	logger *logging.Logger
}

// NewCommandRunner creates a command runner backed by os/exec
func NewCommandRunner(logger *logging.Logger) CommandRunner {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &execRunner{logger: logger}
}

// Run executes argv and captures its streams. The returned error is non-nil
// only when the command could not be started or its output file could not be
// created; a started command that exits non-zero yields a result with
// ExitCode set and a nil error.
func (er *execRunner) Run(ctx context.Context, argv []string, opts CommandOptions) (*CommandResult, error) {
	if len(argv) == 0 {
		return nil, NewValidationError("command argv cannot be empty", nil)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stderr = &stderr

	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}

	if opts.StdoutFile != "" {
		outFile, err := os.Create(opts.StdoutFile)
		if err != nil {
			return nil, NewStorageError("failed to create command output file", err).
				WithContext("path", opts.StdoutFile)
		}
		defer outFile.Close()
		cmd.Stdout = outFile
	} else {
		cmd.Stdout = &stdout
	}

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, NewCommandError("failed to start command", err).
				WithContext("command", argv[0])
		}
		result.ExitCode = exitErr.ExitCode()
	}

	er.logger.LogCommandExecution(argv, result.ExitCode, duration, result.Stderr)
	return result, nil
}

// ToleratedPatterns is the explicit set of benign error substrings a dataset
// restore may emit. The table is part of the dataset descriptor rather than
// ad hoc string matching at call sites.
type ToleratedPatterns []string

// Tolerates reports whether the captured stderr is acceptable: output
// without an ERROR marker always is, and output with one is tolerated only
// when at least one enumerated benign pattern is present.
func (p ToleratedPatterns) Tolerates(stderr string) bool {
	if !strings.Contains(stderr, "ERROR") {
		return true
	}
	for _, pattern := range p {
		if strings.Contains(stderr, pattern) {
			return true
		}
	}
	return false
}
