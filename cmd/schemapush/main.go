package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/stokaro/schemapush/cmd/applyscript"
	"github.com/stokaro/schemapush/cmd/internal/cliconfig"
	"github.com/stokaro/schemapush/cmd/introspect"
	"github.com/stokaro/schemapush/cmd/plan"
	"github.com/stokaro/schemapush/cmd/push"
	"github.com/stokaro/schemapush/cmd/serve"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "schemapush",
		Short: "Push declarative schemas to PostgreSQL, MySQL and SQLite databases",
		Long: `schemapush compares a database with a schema file and applies the difference,
holding back changes that would lose data until they are confirmed.`,
		SilenceUsage: true,
	}

	cliconfig.Setup(rootCmd)
	rootCmd.AddCommand(push.NewPushCommand())
	rootCmd.AddCommand(plan.NewPlanCommand())
	rootCmd.AddCommand(applyscript.NewApplyScriptCommand())
	rootCmd.AddCommand(introspect.NewIntrospectCommand())
	rootCmd.AddCommand(serve.NewServeCommand())
	return rootCmd
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
