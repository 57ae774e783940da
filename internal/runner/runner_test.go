package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lvonguyen/remedyd/internal/rules"
)

// writeScript writes a shell script used as a stand-in playbook. The
// runner binary is /bin/sh, so the "playbook" is the first argument and
// the -e variable pairs are ignored by the script.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "playbook.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func testAction(playbook string, timeout time.Duration) rules.Action {
	return rules.Action{
		ID:       "act-1",
		Name:     "test action",
		Playbook: playbook,
		Timeout:  timeout,
	}
}

func hasLine(lines []string, substr string) bool {
	for _, line := range lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func TestRun_SuccessCapturesStdout(t *testing.T) {
	script := writeScript(t, "echo remediated")
	r := New("/bin/sh", "", zap.NewNop())

	res := r.Run(context.Background(), testAction(script, 5*time.Second))

	if !res.OK {
		t.Fatalf("expected success, lines: %v", res.Lines)
	}
	if !hasLine(res.Lines, "stdout: remediated") {
		t.Errorf("stdout not captured: %v", res.Lines)
	}
}

func TestRun_NonZeroExitFails(t *testing.T) {
	script := writeScript(t, "echo oops >&2\nexit 3")
	r := New("/bin/sh", "", zap.NewNop())

	res := r.Run(context.Background(), testAction(script, 5*time.Second))

	if res.OK {
		t.Fatal("expected failure on non-zero exit")
	}
	if !hasLine(res.Lines, "stderr: oops") {
		t.Errorf("stderr not captured: %v", res.Lines)
	}
	if !hasLine(res.Lines, "exited with code 3") {
		t.Errorf("exit code not reported: %v", res.Lines)
	}
}

func TestRun_MissingPlaybookFailsWithoutSpawn(t *testing.T) {
	r := New("/bin/sh", "", zap.NewNop())

	res := r.Run(context.Background(), testAction(filepath.Join(t.TempDir(), "missing.yml"), 5*time.Second))

	if res.OK {
		t.Fatal("expected failure for missing playbook")
	}
	if !hasLine(res.Lines, "playbook not found") {
		t.Errorf("missing playbook not reported: %v", res.Lines)
	}
}

func TestRun_TimeoutKillsProcess(t *testing.T) {
	script := writeScript(t, "sleep 10")
	r := New("/bin/sh", "", zap.NewNop())

	start := time.Now()
	res := r.Run(context.Background(), testAction(script, 200*time.Millisecond))
	elapsed := time.Since(start)

	if res.OK {
		t.Fatal("expected failure on timeout")
	}
	if !res.TimedOut {
		t.Error("expected TimedOut to be set")
	}
	if !hasLine(res.Lines, "timed out") {
		t.Errorf("timeout not reported: %v", res.Lines)
	}
	if elapsed > 8*time.Second {
		t.Errorf("process was not terminated promptly, took %s", elapsed)
	}
}

func TestRun_UnrunnableBinaryFails(t *testing.T) {
	script := writeScript(t, "echo unused")
	r := New(filepath.Join(t.TempDir(), "no-such-runner"), "", zap.NewNop())

	res := r.Run(context.Background(), testAction(script, 5*time.Second))

	if res.OK {
		t.Fatal("expected failure for unrunnable binary")
	}
	if !hasLine(res.Lines, "failed to run") {
		t.Errorf("spawn error not reported: %v", res.Lines)
	}
}

func TestBuildArgs_VariablesAsDiscreteArgs(t *testing.T) {
	action := rules.Action{
		ID:       "a",
		Playbook: "fix.yml",
		Timeout:  time.Minute,
		Variables: map[string]string{
			"service": "app",
			"host":    "web-1",
		},
	}

	args := buildArgs(action)
	want := []string{"fix.yml", "-e", "host=web-1", "-e", "service=app"}
	if len(args) != len(want) {
		t.Fatalf("expected %v, got %v", want, args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, args)
		}
	}
}
