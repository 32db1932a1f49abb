package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentic-research/tessera/api"
	"github.com/agentic-research/tessera/internal/interp"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [schema]",
	Short: "Interpret a schema and print the tree it prescribes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := api.Load(args[0])
		if err != nil {
			return fmt.Errorf("loading schema: %w", err)
		}
		tree, err := interp.Interpret(doc)
		if err != nil {
			return err
		}
		tree.Walk(func(path []string, n interp.Node) {
			at := strings.Join(path, "/")
			if at == "" {
				at = "."
			}
			switch node := n.(type) {
			case *interp.Branch:
				fmt.Printf("%-9s %s\n", "branch", at)
			case *interp.PatternContext:
				if node.VarName != "" {
					fmt.Printf("%-9s %s  %q binds {%s}\n", "pattern", at, node.Expr, node.VarName)
				} else {
					fmt.Printf("%-9s %s  %q\n", "pattern", at, node.Expr)
				}
			case *interp.ParserLeaf:
				if node.Calculate != nil {
					fmt.Printf("%-9s %s  = %s\n", "calculate", at, node.Calculate.Expression)
					return
				}
				detail := node.Def.Name
				if node.Parsing != nil && node.Parsing.Path != "" {
					detail += " from " + node.Parsing.Path
				}
				fmt.Printf("%-9s %s  <- %s\n", "leaf", at, detail)
			}
		})
		if names := tree.Defs.Names(); len(names) > 0 {
			fmt.Printf("definitions: %s\n", strings.Join(names, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
