package plan

import (
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/schemapush/cmd/internal/cliconfig"
	"github.com/stokaro/schemapush/migration/push"
	"github.com/stokaro/schemapush/schemafile"
)

const (
	schemaFlag = "schema"
	dbURLFlag  = cliconfig.KeyDatabaseURL
)

func newPlanFlags() map[string]cobraflags.Flag {
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
	}
}

func NewPlanCommand() *cobra.Command {
	flags := newPlanFlags()
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the migration a push would apply",
		Long: `Compare the database with the schema file and print the steps, the SQL
and the warnings of the migration without applying anything.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return planCommand(cmd, flags)
		},
	}

	cobraflags.RegisterMap(planCmd, flags)
	return planCmd
}

func planCommand(cmd *cobra.Command, flags map[string]cobraflags.Flag) error {
	schemaPath := flags[schemaFlag].GetString()
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
	conn, err := cliconfig.Open(cmd, dbURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	p, err := push.New(conn).WithLogger(cliconfig.Logger()).Plan(cmd.Context(), desired)
	if err != nil {
		return fmt.Errorf("failed to plan migration: %w", err)
	}

	out := cmd.OutOrStdout()
	if p.Empty() {
		fmt.Fprintln(out, "The database is already in sync with the schema.")
		return nil
	}

	fmt.Fprintf(out, "%d steps:\n", len(p.Steps))
	for i, d := range p.Descriptions() {
		fmt.Fprintf(out, "  %d. %s\n", i+1, d)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "-- SQL --")
	for _, stmt := range p.SQL() {
		fmt.Fprintf(out, "%s;\n", stmt)
	}
	fmt.Fprintln(out)
	cliconfig.PrintFindings(out, "Warnings", p.Report.Warnings)
	cliconfig.PrintFindings(out, "Unexecutable steps", p.Report.Unexecutable)
	return nil
}
