package introspect

import (
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/stokaro/schemapush/cmd/internal/cliconfig"
	"github.com/stokaro/schemapush/schemafile"
)

const (
	dbURLFlag  = cliconfig.KeyDatabaseURL
	formatFlag = "format"
)

func newIntrospectFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		dbURLFlag: &cobraflags.StringFlag{
			Name:  dbURLFlag,
			Value: "",
			Usage: "Database URL (postgres://, mysql://, sqlite://)",
		},
		formatFlag: &cobraflags.StringFlag{
			Name:  formatFlag,
			Value: "yaml",
			Usage: "Output format (yaml, json)",
		},
	}
}

func NewIntrospectCommand() *cobra.Command {
	flags := newIntrospectFlags()
	introspectCmd := &cobra.Command{
		Use:   "introspect",
		Short: "Print the schema of a database as a schema file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return introspectCommand(cmd, flags)
		},
	}

	cobraflags.RegisterMap(introspectCmd, flags)
	return introspectCmd
}

func introspectCommand(cmd *cobra.Command, flags map[string]cobraflags.Flag) error {
	format := flags[formatFlag].GetString()
	if format != "yaml" && format != "json" {
		return fmt.Errorf("unsupported format %q (use yaml or json)", format)
	}
	dbURL, err := cliconfig.DatabaseURL(flags[dbURLFlag].GetString())
	if err != nil {
		return err
	}

	conn, err := cliconfig.Open(cmd, dbURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	current, err := conn.Introspect(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to introspect database: %w", err)
	}

	var data []byte
	if format == "json" {
		data, err = schemafile.MarshalJSON(current)
	} else {
		data, err = schemafile.Marshal(current)
	}
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
