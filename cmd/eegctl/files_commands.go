package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/eeg-findings-server/internal/findings"
)

func newFilesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage stored EEG files and page analyses",
	}

	cmd.AddCommand(newFilesListCommand(ctx))
	cmd.AddCommand(newFilesShowCommand(ctx))
	cmd.AddCommand(newFilesDeleteCommand(ctx))
	cmd.AddCommand(newFilesExportCommand(ctx))
	cmd.AddCommand(newFilesImportCommand(ctx))
	return cmd
}

func newFilesListCommand(ctx *commandContext) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List files, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			files, err := a.Store.ListFiles(cmd.Context(), limit, offset)
			if err != nil {
				return fmt.Errorf("list files: %w", err)
			}
			total, err := a.Store.CountFiles(cmd.Context())
			if err != nil {
				return fmt.Errorf("count files: %w", err)
			}

			if ctx.wantJSON(cmd) {
				return writeJSON(cmd, map[string]any{"files": files, "total": total})
			}
			if len(files) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No files stored")
				return nil
			}
			rows := make([][]string, 0, len(files))
			for _, f := range files {
				rows = append(rows, []string{
					f.ID,
					f.FileName,
					f.UploadDate.Local().Format("2006-01-02 15:04"),
					fmt.Sprintf("%d/%d", f.AnalyzedPagesCount, f.PageCount),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"ID", "Name", "Uploaded", "Analyzed"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
			fmt.Fprintf(out, "%d of %d files\n", len(files), total)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of files")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of files to skip")
	return cmd
}

func newFilesShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a file with the sections of every analyzed page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			file, err := a.Store.GetFile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get file %s: %w", args[0], err)
			}
			if ctx.wantJSON(cmd) {
				return writeJSON(cmd, file)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s  (%d/%d pages analyzed)\n", file.ID, file.FileName, file.AnalyzedPagesCount, file.PageCount)
			if p := file.PatientInfo; p != nil {
				fmt.Fprintf(out, "Patient: %s  %s  %s\n", p.Name, p.Age, p.Gender)
			}
			for _, page := range file.Analyses {
				fmt.Fprintf(out, "\nPage %d\n", page.PageNumber)
				if page.Comment != "" {
					fmt.Fprintf(out, "Comment: %s\n", page.Comment)
				}
				fmt.Fprintln(out, renderSections(findings.ClassifyFindings(page.Analysis.Findings)))
			}
			return nil
		},
	}
}

func newFilesDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a file and its page analyses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Store.DeleteFile(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete file %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newFilesExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export [path]",
		Short: "Export every file and analysis as JSON",
		Long:  "Writes the export to path, or to stdout when path is omitted or \"-\".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Create(args[0])
				if err != nil {
					return fmt.Errorf("create export: %w", err)
				}
				defer f.Close()
				w = f
			}
			if err := a.Store.ExportJSON(cmd.Context(), w); err != nil {
				return fmt.Errorf("export: %w", err)
			}
			if len(args) == 1 && args[0] != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s\n", args[0])
			}
			return nil
		},
	}
}

func newFilesImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Import an export; files that already exist are skipped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open import: %w", err)
			}
			defer f.Close()

			imported, skipped, err := a.Store.ImportJSON(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			if ctx.wantJSON(cmd) {
				return writeJSON(cmd, map[string]int{"imported": imported, "skipped": skipped})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d files, skipped %d\n", imported, skipped)
			return nil
		},
	}
}
