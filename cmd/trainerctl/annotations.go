package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/export"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/model"
)

// annotationsCmd represents the annotations command
var annotationsCmd = &cobra.Command{
	Use:   "annotations",
	Short: "Export and import annotations",
	Long:  `Export and import projects in the MedCAT trainer annotation export format.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'annotations' requires a subcommand (export, import)")
		fmt.Println()
		_ = cmd.Help()
		os.Exit(1)
	},
}

var annotationsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write project annotations as JSON",
	Long: `Write project annotations as JSON to STDOUT or a file.

Example:
  trainerctl annotations export --projects 1 --with-doc-name > export.json
  trainerctl annotations export --projects 1,2 --with-text=false -o export.json`,
	Run: func(cmd *cobra.Command, args []string) {
		ids, _ := cmd.Flags().GetUintSlice("projects")
		output, _ := cmd.Flags().GetString("output")
		opts := export.Options{}
		opts.WithText, _ = cmd.Flags().GetBool("with-text")
		opts.WithDocName, _ = cmd.Flags().GetBool("with-doc-name")
		opts.AllDocuments, _ = cmd.Flags().GetBool("all-documents")

		a, err := newApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer a.close()

		w := io.Writer(os.Stdout)
		if output != "" && output != "-" {
			f, err := os.Create(output)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			defer f.Close()
			w = f
		}
		if err := exportAnnotations(cmd.Context(), a.exports(), ids, opts, w); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to export annotations: %v\n", err)
			os.Exit(1)
		}
	},
}

var annotationsImportCmd = &cobra.Command{
	Use:   "import <export.json>",
	Short: "Create projects from an annotation export",
	Long: `Create projects from an annotation export.

A dataset is created for the documents of each exported project and the
annotations of known users are restored.

Example:
  trainerctl annotations import export.json`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer a.close()

		projects, err := importAnnotations(cmd.Context(), a.exports(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to import annotations: %v\n", err)
			os.Exit(1)
		}
		for _, p := range projects {
			fmt.Printf("Created project '%s' (id %d)\n", p.Name, p.ID)
		}
	},
}

func init() {
	rootCmd.AddCommand(annotationsCmd)
	annotationsCmd.AddCommand(annotationsExportCmd)
	annotationsCmd.AddCommand(annotationsImportCmd)

	annotationsExportCmd.Flags().UintSlice("projects", nil, "Ids of the projects to export")
	annotationsExportCmd.Flags().StringP("output", "o", "", "File to write (default: STDOUT)")
	annotationsExportCmd.Flags().Bool("with-text", true, "Include the document text")
	annotationsExportCmd.Flags().Bool("with-doc-name", false, "Include the document names")
	annotationsExportCmd.Flags().Bool("all-documents", false, "Export every document, not only validated ones")
	_ = annotationsExportCmd.MarkFlagRequired("projects")
}

func exportAnnotations(ctx context.Context, svc *export.Service, ids []uint, opts export.Options, w io.Writer) error {
	if len(ids) == 0 {
		return errors.New("at least one project id is required")
	}
	exp, err := svc.RetrieveProjectData(ctx, ids, opts)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(exp)
}

func importAnnotations(ctx context.Context, svc *export.Service, path string) ([]model.Project, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var exp export.Export
	if err := json.NewDecoder(f).Decode(&exp); err != nil {
		return nil, fmt.Errorf("invalid annotation export: %w", err)
	}
	return svc.UploadProjectsExport(ctx, &exp)
}
