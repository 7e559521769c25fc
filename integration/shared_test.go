//go:build basic || database

package integration

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
)

var (
	// sharedBinaryPath holds the path to a shared fromcvs binary built once for all tests.
	sharedBinaryPath string

	// buildOnce ensures we only build the binary once.
	buildOnce sync.Once

	// buildMutex protects the shared binary path.
	buildMutex sync.Mutex

	// tempDir holds the temp directory for cleanup.
	tempDir string
)

// TestMain handles setup and cleanup for all integration tests.
func TestMain(m *testing.M) {
	// Run all tests
	code := m.Run()

	// Cleanup the shared binary after all tests
	if tempDir != "" {
		_ = os.RemoveAll(tempDir)
	}

	os.Exit(code)
}

// getBinary returns the path to the fromcvs binary, building it once if needed.
func getBinary() string {
	buildMutex.Lock()
	defer buildMutex.Unlock()

	buildOnce.Do(func() {
		// Create a temp directory for the binary
		var err error
		tempDir, err = os.MkdirTemp("", "fromcvs-integration-*")
		if err != nil {
			panic(fmt.Sprintf("failed to create temp dir: %v", err))
		}

		binPath := filepath.Join(tempDir, "fromcvs")
		buildCmd := exec.Command("go", "build", "-o", binPath, ".")
		buildCmd.Dir = ".." // Build from parent directory (project root)
		if out, err := buildCmd.CombinedOutput(); err != nil {
			panic(fmt.Sprintf("failed to build fromcvs: %v\n%s", err, out))
		}

		sharedBinaryPath = binPath
	})

	return sharedBinaryPath
}

// runFromcvs runs the binary with args and returns its combined output.
func runFromcvs(t *testing.T, env []string, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(getBinary(), args...)
	cmd.Dir = t.TempDir()
	cmd.Env = append(os.Environ(), env...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Logf("Command failed: %s\nOutput: %s", cmd.String(), string(output))
	}
	return string(output), err
}

// rcsInstalled reports whether the RCS tools are on the PATH.
func rcsInstalled() bool {
	for _, tool := range []string{"rlog", "co"} {
		if _, err := exec.LookPath(tool); err != nil {
			return false
		}
	}
	return true
}

// requireRCS skips the test when the RCS tools are not installed.
func requireRCS(t *testing.T) {
	t.Helper()
	if !rcsInstalled() {
		t.Skip("rlog and co are not installed")
	}
}

// Revision files of a two-commit module: a.c and b.c are added together,
// then a.c is changed alone.
const (
	fileA = `head	1.2;
access;
symbols;
locks; strict;
comment	@ * @;


1.2
date	2004.03.01.12.01.00;	author alice;	state Exp;
branches;
next	1.1;

1.1
date	2004.03.01.12.00.00;	author alice;	state Exp;
branches;
next	;


desc
@@


1.2
log
@Replace two with three.
@
text
@one
three
@


1.1
log
@Initial import.
@
text
@d2 1
a2 1
two
@
`
	fileB = `head	1.1;
access;
symbols;
locks; strict;
comment	@ * @;


1.1
date	2004.03.01.12.00.05;	author alice;	state Exp;
branches;
next	;


desc
@@


1.1
log
@Initial import.
@
text
@hello
@
`
)

// writeRepository creates a CVS repository with module "proj" and returns its root.
func writeRepository(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	module := filepath.Join(root, "proj")
	if err := os.MkdirAll(filepath.Join(root, "CVSROOT"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(module, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, text := range map[string]string{"a.c,v": fileA, "b.c,v": fileB} {
		if err := os.WriteFile(filepath.Join(module, name), []byte(text), 0o444); err != nil {
			t.Fatal(err)
		}
	}
	return root
}
