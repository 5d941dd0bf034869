package oracle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oracle.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestCLIOracleReturnsStdout(t *testing.T) {
	bin := writeScript(t, `[ "$1" = "--print" ] || exit 9
echo "reply from $(basename "$PWD"): $2"`)
	dir := t.TempDir()
	o := NewCLIOracle(bin, 5*time.Second)

	text, err := o.Query(context.Background(), "hello", WorkingContext{Dir: dir, Role: RoleActor, Actor: "bear"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	want := "reply from " + filepath.Base(dir) + ": hello"
	if text != want {
		t.Fatalf("Query() = %q, want %q", text, want)
	}
}

func TestCLIOracleTimeout(t *testing.T) {
	bin := writeScript(t, "exec sleep 5")
	o := NewCLIOracle(bin, 50*time.Millisecond)

	start := time.Now()
	_, err := o.Query(context.Background(), "x", WorkingContext{Role: RoleArbiter})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Query() error = %v, want ErrTimeout", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("timeout took %v", time.Since(start))
	}
}

func TestCLIOracleNonZeroExitIsProviderFailure(t *testing.T) {
	bin := writeScript(t, `echo "rate limited" >&2
exit 3`)
	_, err := NewCLIOracle(bin, time.Second).Query(context.Background(), "x", WorkingContext{Role: RoleArbiter})
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("Query() error = %v, want ErrProvider", err)
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("error %q should carry stderr", err)
	}
}

func TestCLIOracleSilentNonZeroExitIsTransportFailure(t *testing.T) {
	bin := writeScript(t, "exit 137")
	_, err := NewCLIOracle(bin, time.Second).Query(context.Background(), "x", WorkingContext{Role: RoleArbiter})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Query() error = %v, want ErrTransport", err)
	}
	if errors.Is(err, ErrProvider) {
		t.Fatalf("Query() error = %v, should not be ErrProvider", err)
	}
}

func TestCLIOracleMissingBinaryIsTransportFailure(t *testing.T) {
	o := NewCLIOracle(filepath.Join(t.TempDir(), "missing"), time.Second)
	_, err := o.Query(context.Background(), "x", WorkingContext{Role: RoleArbiter})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Query() error = %v, want ErrTransport", err)
	}
}

func TestCLIOracleEmptyReplyIsProviderFailure(t *testing.T) {
	bin := writeScript(t, "exit 0")
	_, err := NewCLIOracle(bin, time.Second).Query(context.Background(), "x", WorkingContext{Role: RoleArbiter})
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("Query() error = %v, want ErrProvider", err)
	}
}
