package applyscript

import (
	"fmt"
	"os"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/schemapush/cmd/internal/cliconfig"
	"github.com/stokaro/schemapush/migration/push"
)

const (
	fileFlag  = "file"
	dbURLFlag = cliconfig.KeyDatabaseURL
)

func newApplyScriptFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		fileFlag: &cobraflags.StringFlag{
			Name:  fileFlag,
			Value: "",
			Usage: "SQL script to run",
		},
		dbURLFlag: &cobraflags.StringFlag{
			Name:  dbURLFlag,
			Value: "",
			Usage: "Database URL (postgres://, mysql://, sqlite://)",
		},
	}
}

func NewApplyScriptCommand() *cobra.Command {
	flags := newApplyScriptFlags()
	applyScriptCmd := &cobra.Command{
		Use:   "apply-script",
		Short: "Run a SQL script against a database",
		Long: `Run a SQL script as it is, without comparing or checking anything.

PostgreSQL and SQLite run the script in one transaction. MySQL runs it
statement by statement.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return applyScriptCommand(cmd, flags)
		},
	}

	cobraflags.RegisterMap(applyScriptCmd, flags)
	return applyScriptCmd
}

func applyScriptCommand(cmd *cobra.Command, flags map[string]cobraflags.Flag) error {
	path := flags[fileFlag].GetString()
	if path == "" {
		return fmt.Errorf("script file is required (use --file flag)")
	}
	dbURL, err := cliconfig.DatabaseURL(flags[dbURLFlag].GetString())
	if err != nil {
		return err
	}

	script, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}
	conn, err := cliconfig.Open(cmd, dbURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := push.New(conn).WithLogger(cliconfig.Logger()).ApplyScript(cmd.Context(), string(script)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Script %s applied.\n", path)
	return nil
}
