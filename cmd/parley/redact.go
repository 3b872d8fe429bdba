package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pario-ai/parley/pkg/redact"
)

func newRedactCmd() *cobra.Command {
	var showCounts bool

	cmd := &cobra.Command{
		Use:   "redact [text]",
		Short: "Mask PII in text from the arguments or stdin",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) > 0 {
				text = strings.Join(args, " ")
			} else {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(b)
			}

			masked, counts := redact.RedactCount(text)
			fmt.Fprint(cmd.OutOrStdout(), masked)
			if len(args) > 0 {
				fmt.Fprintln(cmd.OutOrStdout())
			}
			if showCounts {
				fmt.Fprint(cmd.ErrOrStderr(), formatCounts(counts))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showCounts, "counts", false, "print per-rule match counts to stderr")
	return cmd
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "No PII found.\n"
	}
	rules := make([]string, 0, len(counts))
	for r := range counts {
		rules = append(rules, r)
	}
	sort.Strings(rules)

	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %6s\n", "RULE", "COUNT")
	b.WriteString(strings.Repeat("-", 23) + "\n")
	for _, r := range rules {
		fmt.Fprintf(&b, "%-16s %6d\n", r, counts[r])
	}
	return b.String()
}
