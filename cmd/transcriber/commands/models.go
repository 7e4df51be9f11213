package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"batch-transcriber/internal/transcribe"
)

func newModelsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List speech models, specializations and prices",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			settings, err := e.settings.Load()
			if err != nil {
				return err
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(e.out)
			tw.SetStyle(table.StyleLight)
			tw.AppendHeader(table.Row{"", "Model", "Name", "Specializations", "$/hour"})
			for _, m := range transcribe.Models {
				marker := ""
				if m.ID == settings.Model {
					marker = okColor.Sprint("*")
				}
				specs := lo.Keys(m.Specializations)
				sort.Strings(specs)
				tw.AppendRow(table.Row{marker, m.ID, m.Name, strings.Join(specs, ", "), fmt.Sprintf("%.2f", m.PricePerMinute*60)})
			}
			tw.Render()
			return nil
		},
	}
}
