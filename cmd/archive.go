package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/agentic-research/tessera/api"
	"github.com/agentic-research/tessera/internal/archivist"
)

var (
	archiveSchema      string
	archiveOutDir      string
	archiveOutFile     string
	archiveFormat      string
	archiveExtractDir  string
	archiveLazy        bool
	archiveNoOverwrite bool
	archiveKeep        bool
	archiveDesc        bool
	archiveTypes       bool
)

var archiveCmd = &cobra.Command{
	Use:   "archive [source]",
	Short: "Parse a source tree or archive and export its metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := archivist.Config{
			ExtractionDirectory: archiveExtractDir,
			OutputDirectory:     archiveOutDir,
			OutputFile:          archiveOutFile,
			OutputFormat:        archiveFormat,
			LazyLoad:            archiveLazy,
			Overwrite:           !archiveNoOverwrite,
			AutoCleanup:         !archiveKeep,
			AddDescription:      archiveDesc,
			AddType:             archiveTypes,
		}
		arch := archivist.New(cfg, slog.Default())
		if archiveSchema != "" {
			doc, err := api.Load(archiveSchema)
			if err != nil {
				return fmt.Errorf("loading schema: %w", err)
			}
			if err := arch.SetSchema(doc); err != nil {
				return err
			}
		}
		report, err := arch.Run(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Explored %d files, parsed %d.\n", report.Files, report.Parsed)
		if n := len(report.Warnings); n > 0 {
			fmt.Printf("Merge finished with %d warnings, see the log for details.\n", n)
		}
		fmt.Printf("Wrote %s\n", report.OutputPath)
		return nil
	},
}

func init() {
	archiveCmd.Flags().StringVarP(&archiveSchema, "schema", "s", "", "Path to the structure schema (mirror the source tree when omitted)")
	archiveCmd.Flags().StringVarP(&archiveOutDir, "output-dir", "o", ".", "Directory for the output file")
	archiveCmd.Flags().StringVar(&archiveOutFile, "output-file", "metadata.json", "Name of the output file")
	archiveCmd.Flags().StringVarP(&archiveFormat, "format", "f", "JSON", "Output format (JSON or YAML)")
	archiveCmd.Flags().StringVar(&archiveExtractDir, "extraction-dir", ".", "Directory archives are extracted into")
	archiveCmd.Flags().BoolVar(&archiveLazy, "lazy", false, "Keep parsed values on disk until the merge needs them")
	archiveCmd.Flags().BoolVar(&archiveNoOverwrite, "no-overwrite", false, "Refuse to replace an existing output file")
	archiveCmd.Flags().BoolVar(&archiveKeep, "keep-extracted", false, "Keep extracted archive contents after the run")
	archiveCmd.Flags().BoolVar(&archiveDesc, "add-descriptions", false, "Wrap merged fields with their schema descriptions")
	archiveCmd.Flags().BoolVar(&archiveTypes, "add-types", false, "Wrap merged fields with their schema types")
	rootCmd.AddCommand(archiveCmd)
}
