package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smazurov/ocrnode/internal/models"
)

// CreateModelsCmd creates the models command group.
func CreateModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect installed recognition models",
	}
	cmd.AddCommand(createModelsListCmd())
	return cmd
}

func createModelsListCmd() *cobra.Command {
	opts := DefaultEngineOptions()
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the default model and every installed model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.load(cmd); err != nil {
				return err
			}
			list, err := opts.Models().List()
			if err != nil {
				return err
			}
			return printModels(cmd.OutOrStdout(), list, asJSON)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Config, "config", "c", opts.Config, "Path to configuration file")
	f.StringVar(&opts.ModelsDir, "models-dir", opts.ModelsDir, "Directory with installed models")
	f.StringVar(&opts.ModelsDefault, "models-default", opts.ModelsDefault, "Id of the bundled model")
	f.BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func printModels(w io.Writer, list []models.Model, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLANGUAGE\tDEFAULT\tDIR")
	for _, m := range list {
		dir := m.Dir
		if dir == "" {
			dir = "(bundled)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", m.ID, m.Language, m.Default, dir)
	}
	return tw.Flush()
}
