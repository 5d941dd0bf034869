package oracle

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

// CLIOracle runs a local text-generation binary once per query (`<bin> --print <prompt>`)
// inside the working context's directory and returns its stdout.
type CLIOracle struct {
	binaryPath string
	timeout    time.Duration
}

func NewCLIOracle(binaryPath string, timeout time.Duration) *CLIOracle {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CLIOracle{binaryPath: strings.TrimSpace(binaryPath), timeout: timeout}
}

func (o *CLIOracle) Query(ctx context.Context, prompt string, wc WorkingContext) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	cmd := exec.CommandContext(callCtx, o.binaryPath, "--print", prompt)
	cmd.Dir = wc.Dir
	// Children that inherit stdout would otherwise keep Wait blocked past the deadline.
	cmd.WaitDelay = time.Second
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// exec.CommandContext may surface "signal: killed" instead of the deadline.
		if ce := classifyContext(callCtx, "cli", wc, o.timeout); ce != nil {
			return "", ce
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			errText := strings.TrimSpace(stderr.String())
			if errText == "" {
				errText = strings.TrimSpace(stdout.String())
			}
			// A process that dies without a word never reached the model.
			if errText == "" {
				return "", newError(KindTransport, "cli", wc, "exited without output", err)
			}
			return "", newError(KindProvider, "cli", wc, errText, err)
		}
		return "", newError(KindTransport, "cli", wc, "", err)
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return "", newError(KindProvider, "cli", wc, "empty reply", nil)
	}
	return text, nil
}
