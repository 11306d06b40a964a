package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/pdfalt/internal/logger"
	"github.com/xhad/pdfalt/internal/pipeline"
	"github.com/xhad/pdfalt/pkg/pdf"
	"github.com/xhad/pdfalt/server"
)

var extractCmd = &cobra.Command{
	Use:   "extract <pdf>",
	Short: "Write the image context table of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(cfg, pipelineOptions{input: args[0], progress: progressFunc(cfg.UI.Progress)})
		if err != nil {
			return err
		}

		result, err := p.Extract(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		color.Green("\n✓ %d images with context (%d skipped) -> %s\n",
			len(result.Records), len(result.Skipped), result.ContextTable)
		return nil
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe <context.csv>",
	Short: "Generate a description for every row of a context table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(cfg, pipelineOptions{generator: true, progress: progressFunc(cfg.UI.Progress)})
		if err != nil {
			return err
		}

		result, err := p.DescribeFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		color.Green("\n✓ %d descriptions (%d fallbacks) -> %s\n",
			len(result.Records), len(result.Failures), result.DescribedTable)
		return nil
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge <pdf> <described.csv>",
	Short: "Write descriptions and accessibility attributes into the document metadata",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPipeline(cfg, pipelineOptions{progress: progressFunc(cfg.UI.Progress)})
		if err != nil {
			return err
		}

		result, err := p.MergeFile(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if len(result.RowErrors) > 0 {
			color.Yellow("\n! %d malformed rows skipped\n", len(result.RowErrors))
		}
		color.Green("\n✓ Metadata written -> %s\n", result.Output)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run <pdf>",
	Short: "Extract, describe and merge in one go",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		archive, err := newArchive(ctx, cfg)
		if err != nil {
			return err
		}
		if archive != nil {
			defer archive.Close()
		}

		p, err := newPipeline(cfg, pipelineOptions{
			input:     args[0],
			generator: true,
			archive:   archive,
			progress:  progressFunc(cfg.UI.Progress),
		})
		if err != nil {
			return err
		}

		color.Blue("\nProcessing %s\n", args[0])
		result, err := p.Run(ctx, args[0])
		if err != nil {
			return err
		}
		color.Green("\n✓ %s\n", result)
		return nil
	},
}

var metadataCmd = &cobra.Command{
	Use:   "metadata <pdf>",
	Short: "Print the metadata of a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := pdf.Open(args[0])
		if err != nil {
			return err
		}
		defer doc.Close()

		key := color.New(color.FgCyan).SprintFunc()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %d\n", key("Pages:"), doc.PageCount())
		for _, e := range doc.Metadata() {
			fmt.Fprintf(out, "%s %s\n", key(e.Key+":"), e.Value)
		}
		return nil
	},
}

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find archived image descriptions similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		archive, err := newArchive(ctx, cfg)
		if err != nil {
			return err
		}
		if archive == nil {
			return fmt.Errorf("search requires database.url or DATABASE_URL")
		}
		defer archive.Close()

		spinner := getSpinner("🔍 Searching descriptions...")
		entries, err := archive.Search(ctx, strings.Join(args, " "), searchLimit)
		spinner.Finish()
		fmt.Print("\r")
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			color.Yellow("No archived descriptions found")
			return nil
		}
		for _, e := range entries {
			color.Cyan("%s  %s (%.3f)", e.Document, e.Record.ImageName, e.Distance)
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", e.Record.Description)
		}
		return nil
	},
}

var (
	serveAddr string
	serveRoot string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Process documents requested over a websocket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		archive, err := newArchive(ctx, cfg)
		if err != nil {
			return err
		}
		if archive != nil {
			defer archive.Close()
		}

		// Fail on startup rather than on the first request.
		if _, err := newPipeline(cfg, pipelineOptions{generator: true}); err != nil {
			return err
		}

		s, err := server.NewWSServer(server.Config{Addr: serveAddr, RootDir: serveRoot},
			func(onProgress pipeline.ProgressFunc) server.Runner {
				p, err := newPipeline(cfg, pipelineOptions{generator: true, archive: archive, progress: onProgress})
				if err != nil {
					return failedRunner{err: err}
				}
				return p
			})
		if err != nil {
			return err
		}

		logger.WithField("root", serveRoot).Info("Serving documents")
		return s.ListenAndServe(ctx)
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "Maximum number of results")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveRoot, "root", ".", "Directory documents are served from")

	rootCmd.AddCommand(extractCmd, describeCmd, mergeCmd, runCmd, metadataCmd, searchCmd, serveCmd)
}
