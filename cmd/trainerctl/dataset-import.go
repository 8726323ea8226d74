package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
)

// datasetImportCmd represents the dataset import command
var datasetImportCmd = &cobra.Command{
	Use:   "import <csv>",
	Short: "Create a dataset from a CSV file",
	Long: `Create a dataset from a CSV file with a "name" and a "text" column.

One document is created per row. The dataset name defaults to the file
name without its extension.

Example:
  trainerctl dataset import notes.csv
  trainerctl dataset import notes.csv --name discharge --description "Discharge summaries"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")

		a, err := newApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer a.close()

		ds, docs, err := importDataset(cmd.Context(), a, args[0], name, description)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to import dataset: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created dataset '%s' (id %d) with %d documents\n", ds.Name, ds.ID, docs)
	},
}

func init() {
	datasetCmd.AddCommand(datasetImportCmd)
	datasetImportCmd.Flags().StringP("name", "n", "", "Dataset name (default: file name)")
	datasetImportCmd.Flags().StringP("description", "d", "", "Dataset description")
}

func importDataset(ctx context.Context, a *app, path, name, description string) (*model.Dataset, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	base := filepath.Base(path)
	if name == "" {
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	ds := &model.Dataset{Name: name, Description: description}
	docs, err := a.datasets().CreateDataset(ctx, ds, base, f)
	if err != nil {
		return nil, 0, err
	}
	return ds, len(docs), nil
}
