package push

import (
	"fmt"
	"io"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/schemapush/cmd/internal/cliconfig"
	"github.com/stokaro/schemapush/migration/push"
	"github.com/stokaro/schemapush/schemafile"
)

const (
	schemaFlag = "schema"
	dbURLFlag  = cliconfig.KeyDatabaseURL
	forceFlag  = "force"
	dryRunFlag = "dry-run"
)

func newPushFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		schemaFlag: &cobraflags.StringFlag{
			Name:  schemaFlag,
			Value: "",
			Usage: "Schema file (YAML or JSON) describing the desired database",
		},
		dbURLFlag: &cobraflags.StringFlag{
			Name:  dbURLFlag,
			Value: "",
			Usage: "Database URL (postgres://, mysql://, sqlite://)",
		},
		forceFlag: &cobraflags.BoolFlag{
			Name:  forceFlag,
			Value: false,
			Usage: "Apply the migration even if it has warnings",
		},
		dryRunFlag: &cobraflags.BoolFlag{
			Name:  dryRunFlag,
			Value: false,
			Usage: "Print the statements instead of executing them",
		},
	}
}

func NewPushCommand() *cobra.Command {
	flags := newPushFlags()
	pushCmd := &cobra.Command{
		Use:   "push",
		Short: "Bring a database in line with a schema file",
		Long: `Compare the database with the schema file and apply the difference.

Changes that may lose data are listed and nothing is applied unless --force
is given. Changes that cannot be applied to the data in the database, such as
adding a required column without a default to a non-empty table, also block
the push.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return pushCommand(cmd, flags)
		},
	}

	cobraflags.RegisterMap(pushCmd, flags)
	return pushCmd
}

func pushCommand(cmd *cobra.Command, flags map[string]cobraflags.Flag) error {
	schemaPath := flags[schemaFlag].GetString()
	force := flags[forceFlag].GetBool()
	dryRun := flags[dryRunFlag].GetBool()

	if schemaPath == "" {
		return fmt.Errorf("schema file is required (use --schema flag)")
	}
	dbURL, err := cliconfig.DatabaseURL(flags[dbURLFlag].GetString())
	if err != nil {
		return err
	}

	desired, err := schemafile.Load(schemaPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var dryRunOut io.Writer
	if dryRun {
		dryRunOut = out
	}
	conn, err := cliconfig.Open(cmd, dbURL, dryRunOut)
	if err != nil {
		return err
	}
	defer conn.Close()

	result, err := push.New(conn).WithLogger(cliconfig.Logger()).Push(cmd.Context(), desired, force)
	if result != nil {
		cliconfig.PrintFindings(out, "Warnings", result.Warnings)
		cliconfig.PrintFindings(out, "Unexecutable steps", result.Unexecutable)
	}
	if err != nil {
		if result != nil && result.ExecutedSteps > 0 {
			fmt.Fprintf(out, "%d of %d steps were applied before the failure.\n", result.ExecutedSteps, len(result.Steps))
		}
		return fmt.Errorf("push failed: %w", err)
	}

	switch {
	case !result.Applied:
		return fmt.Errorf("push blocked: %d warnings and %d unexecutable steps (use --force to apply anyway)",
			len(result.Warnings), len(result.Unexecutable))
	case len(result.Steps) == 0:
		fmt.Fprintln(out, "The database is already in sync with the schema.")
	case dryRun:
		fmt.Fprintf(out, "Dry run: %d steps were printed, none were executed.\n", len(result.Steps))
	default:
		fmt.Fprintf(out, "Applied %d steps:\n", result.ExecutedSteps)
		for _, s := range result.Steps {
			fmt.Fprintf(out, "  - %s\n", s)
		}
	}
	return nil
}
