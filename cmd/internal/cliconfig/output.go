package cliconfig

import (
	"fmt"
	"io"

	"github.com/stokaro/schemapush/migration/destructive"
)

// PrintFindings prints one titled list of classifier findings.
func PrintFindings(w io.Writer, title string, findings []destructive.Finding) {
	if len(findings) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, f := range findings {
		fmt.Fprintf(w, "  • %s\n", f.Message)
	}
	fmt.Fprintln(w)
}
