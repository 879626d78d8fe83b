package schema

import (
	"testing"

	"github.com/spf13/cobra"
)

func testTree() *cobra.Command {
	root := &cobra.Command{Use: "swapd", Short: "root"}
	sub := &cobra.Command{Use: "swap", Short: "swap tokens"}
	sub.Flags().String("wallet", "", "Wallet address")
	sub.Flags().Int64("slippage-bps", 100, "Slippage tolerance")
	root.AddCommand(sub)
	return root
}

func TestDescribeRoot(t *testing.T) {
	s, err := Describe(testTree(), "")
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if s.Path != "swapd" || len(s.Subcommands) != 1 {
		t.Fatalf("unexpected schema: %+v", s)
	}
}

func TestDescribeSubcommand(t *testing.T) {
	s, err := Describe(testTree(), "swap")
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if len(s.Flags) != 2 {
		t.Fatalf("expected 2 flags, got %+v", s.Flags)
	}
	var found bool
	for _, f := range s.Flags {
		if f.Name == "slippage-bps" && f.Default == "100" {
			found = true
		}
	}
	if !found {
		t.Fatalf("slippage-bps flag missing: %+v", s.Flags)
	}
}

func TestDescribeUnknownPath(t *testing.T) {
	if _, err := Describe(testTree(), "nope"); err == nil {
		t.Fatal("expected error for unknown command path")
	}
}
