package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/labelscan/internal/knowledge"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Query the local ingredient table",
}

var kbLookupCmd = &cobra.Command{
	Use:   "lookup <ingredient>",
	Short: "Show what the local table knows about an ingredient",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runKBLookup,
}

var kbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every ingredient in the local table",
	Args:  cobra.NoArgs,
	RunE:  runKBList,
}

func init() {
	kbCmd.AddCommand(kbLookupCmd)
	kbCmd.AddCommand(kbListCmd)
}

func runKBLookup(cmd *cobra.Command, args []string) error {
	kb := knowledge.Default()
	name := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	if !kb.Known(name) {
		fmt.Fprintf(out, "%s is not in the local ingredient table.\n", name)
		return nil
	}

	ing := kb.Lookup(name)
	canonical, _ := kb.Canonical(name)
	fmt.Fprintf(out, "%s [%s]\n", canonical, ing.RiskLevel)
	fmt.Fprintf(out, "\n%s\n\nHealth impact: %s\n", ing.Description, ing.HealthImpact)
	if syn := kb.Synonyms(name); len(syn) > 0 {
		fmt.Fprintf(out, "\nAlso known as: %s\n", strings.Join(syn, ", "))
	}
	if len(ing.Alternatives) > 0 {
		fmt.Fprintln(out, "\nAlternatives:")
		for _, alt := range ing.Alternatives {
			fmt.Fprintf(out, "  - %s\n", alt)
		}
	}
	return nil
}

func runKBList(cmd *cobra.Command, args []string) error {
	kb := knowledge.Default()
	for _, name := range kb.Names() {
		fmt.Fprintf(cmd.OutOrStdout(), "%-26s %s\n", name, kb.Lookup(name).RiskLevel)
	}
	return nil
}
