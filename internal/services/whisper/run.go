package whisper

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

const outputTailLimit = 2048

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s: %w: %s", name, err, tail(output))
	}
	return output, nil
}

func tail(output []byte) string {
	text := strings.TrimSpace(string(output))
	if len(text) > outputTailLimit {
		text = "..." + text[len(text)-outputTailLimit:]
	}
	return text
}
