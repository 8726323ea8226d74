package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/deployment"
)

// deploymentCmd represents the deployment command
var deploymentCmd = &cobra.Command{
	Use:   "deployment",
	Short: "Export and import deployments",
	Long: `Export and import deployment archives.

A deployment archive is a tar.gz bundling projects with their datasets,
model files, meta tasks and annotations.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'deployment' requires a subcommand (export, import)")
		fmt.Println()
		_ = cmd.Help()
		os.Exit(1)
	},
}

var deploymentExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write projects to a deployment archive",
	Long: `Write projects to a deployment archive.

Example:
  trainerctl deployment export --projects 1,2 --output deployment.tar.gz`,
	Run: func(cmd *cobra.Command, args []string) {
		ids, _ := cmd.Flags().GetUintSlice("projects")
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer a.close()

		manifest, err := exportDeployment(cmd.Context(), a.deployments(), ids, output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to export deployment: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Exported %d project(s) to %s\n", len(manifest.Projects), output)
	},
}

var deploymentImportCmd = &cobra.Command{
	Use:   "import <archive>",
	Short: "Recreate the projects of a deployment archive",
	Long: `Recreate the projects of a deployment archive.

Every row is created with a new id. Members are matched by username and
annotations of unknown users are skipped.

Example:
  trainerctl deployment import deployment.tar.gz`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := newApp()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer a.close()

		summary, err := importDeployment(cmd.Context(), a.deployments(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to import deployment: %v\n", err)
			os.Exit(1)
		}
		for oldID, newID := range summary.Projects {
			fmt.Printf("Project %d imported as %d\n", oldID, newID)
		}
		fmt.Printf("Imported %d document(s) and %d annotation(s) into %s\n",
			summary.Documents, summary.Annotations, summary.Directory)
	},
}

func init() {
	rootCmd.AddCommand(deploymentCmd)
	deploymentCmd.AddCommand(deploymentExportCmd)
	deploymentCmd.AddCommand(deploymentImportCmd)

	deploymentExportCmd.Flags().UintSlice("projects", nil, "Ids of the projects to export")
	deploymentExportCmd.Flags().StringP("output", "o", "deployment.tar.gz", "Archive to write")
	_ = deploymentExportCmd.MarkFlagRequired("projects")
}

func exportDeployment(ctx context.Context, svc *deployment.Service, ids []uint, output string) (*deployment.Manifest, error) {
	if len(ids) == 0 {
		return nil, errors.New("at least one project id is required")
	}
	f, err := os.Create(output)
	if err != nil {
		return nil, err
	}
	manifest, err := svc.Export(ctx, ids, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(output)
		return nil, err
	}
	return manifest, nil
}

func importDeployment(ctx context.Context, svc *deployment.Service, path string) (*deployment.ImportSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return svc.Import(ctx, f)
}
