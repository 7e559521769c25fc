package contract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/seanfarley/fromcvs/schema"
)

// LocalGitClient implements the GitClient interface by executing the
// local 'git' binary installed on the machine.
type LocalGitClient struct {
	exe string
}

var _ GitClient = &LocalGitClient{} // Compile-time check

// NewLocalGitClient creates a new instance of the local Git client.
// gitPath overrides the executable looked up on PATH.
func NewLocalGitClient(gitPath string) *LocalGitClient {
	return &LocalGitClient{exe: defaultString(gitPath, "git")}
}

// Run executes a git command and returns its standard output.
func (c *LocalGitClient) Run(ctx context.Context, repoPath string, args ...string) ([]byte, error) {
	fullArgs := append([]string{"-C", repoPath}, args...)
	cmd := exec.CommandContext(ctx, c.exe, fullArgs...)
	out, err := cmd.Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stderr := strings.TrimSpace(string(exitErr.Stderr))
		return nil, fmt.Errorf("%s failed in %q: %s", shellquote.Join(args...), repoPath, stderr)
	} else if err != nil {
		return nil, fmt.Errorf("git command failed: %w. Ensure Git is installed and available on your PATH", err)
	}
	return out, nil
}

// ListBranches implements the GitClient interface.
func (c *LocalGitClient) ListBranches(ctx context.Context, repoPath string) ([]schema.BranchTip, error) {
	out, err := c.Run(ctx, repoPath,
		"for-each-ref",
		"--format=%(refname:short) %(objectname) %(committerdate:unix)",
		"refs/heads")
	if err != nil {
		return nil, err
	}
	return parseBranchTips(out)
}

// ListFiles implements the GitClient interface.
func (c *LocalGitClient) ListFiles(ctx context.Context, repoPath string, ref string) ([]string, error) {
	out, err := c.Run(ctx, repoPath, "ls-tree", "--name-only", "--full-name", "-r", "-z", ref)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, f := range strings.Split(string(out), "\x00") {
		if f != "" {
			files = append(files, f)
		}
	}
	return files, nil
}

// FastImport implements the GitClient interface.
func (c *LocalGitClient) FastImport(ctx context.Context, repoPath string) (io.WriteCloser, error) {
	cmd := exec.CommandContext(ctx, c.exe, "-C", repoPath, "fast-import", "--quiet")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	s := &importStream{cmd: cmd, stdin: stdin}
	cmd.Stderr = &s.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start git fast-import: %w. Ensure Git is installed and available on your PATH", err)
	}
	return s, nil
}

// importStream is the standard input of a running git fast-import.
type importStream struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
}

func (s *importStream) Write(p []byte) (int, error) {
	return s.stdin.Write(p)
}

// Close ends the stream and waits for git fast-import to exit.
func (s *importStream) Close() error {
	if err := s.stdin.Close(); err != nil {
		return err
	}
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("git fast-import: %w: %s", err, strings.TrimSpace(s.stderr.String()))
	}
	return nil
}

// parseBranchTips parses "name hash epoch" lines.
func parseBranchTips(out []byte) ([]schema.BranchTip, error) {
	var tips []schema.BranchTip
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: malformed ref line %q", ErrDestination, line)
		}
		epoch, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed commit date in %q", ErrDestination, line)
		}
		tips = append(tips, schema.BranchTip{
			Name:      fields[0],
			Hash:      fields[1],
			Committed: time.Unix(epoch, 0).UTC(),
		})
	}
	return tips, nil
}
