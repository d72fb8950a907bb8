package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"quotereel/internal/domain/model"
)

// CommandRenderer shells out to an external rendering command. The payload is
// written to the command's stdin as JSON; the command prints the asset
// reference on stdout. Cancellation of ctx kills the process.
type CommandRenderer struct {
	Command string
	Args    []string
}

func NewCommandRenderer(command string, args ...string) *CommandRenderer {
	return &CommandRenderer{Command: command, Args: args}
}

func (r *CommandRenderer) Render(ctx context.Context, payload model.RenderPayload, progress ProgressFunc) (string, error) {
	if r.Command == "" {
		return "", errors.New("render command not configured")
	}

	input, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal render payload: %w", err)
	}

	cmd := exec.CommandContext(ctx, r.Command, r.Args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("render command failed: %s", msg)
	}

	assetRef := strings.TrimSpace(stdout.String())
	if assetRef == "" {
		return "", errors.New("render command produced no asset reference")
	}
	return assetRef, nil
}
