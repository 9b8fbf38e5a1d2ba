// Package sections implements the sections command, which lists the section
// URL segments the crawler recognises.
package sections

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/nmls-crawler/internal/domain"
)

// Command returns the sections command for use in the root command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "sections",
		Short: "List the recognised listing types and categories",
		Long: `A region section path looks like /<listing type>-<category>, for example
/prodazha-kvartir. Sections whose segments are not listed here are skipped.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			Render(cmd.OutOrStdout())
		},
	}
}

// Render writes both lexicons as tables.
func Render(w io.Writer) {
	renderLexicon(w, "Listing type", domain.ListingTypes())
	renderLexicon(w, "Category", domain.Categories())
}

func renderLexicon(w io.Writer, title string, lex domain.Lexicon) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("%s", title)
	t.AppendHeader(table.Row{"Segment", "ID"})
	for _, seg := range lex.Segments() {
		t.AppendRow(table.Row{seg, lex[seg]})
	}
	t.Render()
}
