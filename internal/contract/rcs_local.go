package contract

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
)

// LocalRCSClient implements the RCSClient interface by executing the
// RCS binaries installed on the machine.
type LocalRCSClient struct {
	tools map[string]string // logical tool name -> executable path
}

var _ RCSClient = &LocalRCSClient{} // Compile-time check

// NewLocalRCSClient creates a new instance of the local RCS client.
// rlogPath and coPath override the executables looked up on PATH.
func NewLocalRCSClient(rlogPath, coPath string) *LocalRCSClient {
	return &LocalRCSClient{tools: map[string]string{
		"rlog": defaultString(rlogPath, "rlog"),
		"co":   defaultString(coPath, "co"),
	}}
}

// Run executes an RCS tool and returns its standard output.
func (c *LocalRCSClient) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	bin := name
	if p, ok := c.tools[name]; ok {
		bin = p
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stderr := strings.TrimSpace(string(exitErr.Stderr))
		return nil, fmt.Errorf("%s failed: %s", shellquote.Join(append([]string{bin}, args...)...), stderr)
	} else if err != nil {
		return nil, fmt.Errorf("%s failed: %w. Ensure RCS is installed and available on your PATH", bin, err)
	}
	return out, nil
}
