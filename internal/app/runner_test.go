package app

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestRunnerVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"version"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	if strings.TrimSpace(stdout.String()) == "" {
		t.Fatal("expected version output")
	}
}

func TestRunnerSchema(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"schema", "swap"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var s map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &s); err != nil {
		t.Fatalf("failed to parse schema output: %v output=%s", err, stdout.String())
	}
	if s["path"] != "swapd swap" {
		t.Fatalf("unexpected schema path: %v", s["path"])
	}
}

func TestRunnerUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"bogus"})
	if code != 2 {
		t.Fatalf("expected exit 2 for usage error, got %d", code)
	}
}

func TestRunnerSwapInvalidAddress(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{
		"swap",
		"--wallet", "not-an-address",
		"--token-from", "0x6B175474E89094C44Da98b954EedeAC495271d0F",
		"--token-to", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"--amount", "1000",
		"--unsigned",
		"--no-journal",
	})
	if code != 2 {
		t.Fatalf("expected exit 2 for invalid address, got %d stderr=%s", code, stderr.String())
	}
	var body map[string]any
	if err := json.Unmarshal(stderr.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse error output: %v output=%s", err, stderr.String())
	}
	if body["kind"] != "InvalidAddress" {
		t.Fatalf("expected InvalidAddress kind, got %v", body["kind"])
	}
}

func TestRunnerSwapSignedWithoutKey(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SWAPD_PRIVATE_KEY", "")
	t.Setenv("SWAPD_PRIVATE_KEY_FILE", "")
	t.Setenv("SWAPD_KEYSTORE_PATH", "")
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{
		"swap",
		"--wallet", "0x903146AD0B41aBc53D8A8cc166fb56b41bC0e90e",
		"--token-from", "0x6B175474E89094C44Da98b954EedeAC495271d0F",
		"--token-to", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		"--amount", "1000",
		"--no-journal",
	})
	if code != 12 {
		t.Fatalf("expected exit 12 for missing signing identity, got %d stderr=%s", code, stderr.String())
	}
}

func TestRunnerMissingRequiredFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"swap", "--unsigned"})
	if code != 2 {
		t.Fatalf("expected exit 2 for missing flags, got %d", code)
	}
}

func TestIsLikelyUsageError(t *testing.T) {
	if !isLikelyUsageError(bytesError("unknown flag: --nope")) {
		t.Fatal("unknown flag should classify as usage error")
	}
	if isLikelyUsageError(bytesError("connection refused")) {
		t.Fatal("network error should not classify as usage error")
	}
}

type bytesError string

func (e bytesError) Error() string { return string(e) }
