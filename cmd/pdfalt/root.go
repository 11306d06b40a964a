package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xhad/pdfalt/internal/logger"
	cfgPkg "github.com/xhad/pdfalt/pkg/config"
)

var (
	configPath string
	source     string
	outDir     string
	threshold  float64
	workers    int

	cfg *cfgPkg.Config
)

var rootCmd = &cobra.Command{
	Use:   "pdfalt",
	Short: "Generate alternative text for the images of a PDF",
	Long: `pdfalt associates every image of a PDF with the text around it, asks an LLM
for a one-line description of each image and writes the descriptions, together
with a set of accessibility attributes, into the document metadata.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&source, "source", "pdf", "Page model source (pdf, pdfxml)")
	rootCmd.PersistentFlags().StringVarP(&outDir, "out", "o", "", "Output directory (default: next to the input)")
	rootCmd.PersistentFlags().Float64Var(&threshold, "threshold", 0, "Largest gap between a title and its image (default from config)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 0, "Concurrent description requests (default from config)")
}

func loadConfig(cmd *cobra.Command) (*cfgPkg.Config, error) {
	c, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	// Command line flags win over the config file
	if cmd.Flags().Changed("threshold") {
		c.Context.TitleThreshold = threshold
	}
	if cmd.Flags().Changed("workers") {
		c.LLM.Workers = workers
	}

	if errs := c.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}
	if source != "pdf" && source != "pdfxml" {
		return nil, fmt.Errorf("invalid source %q: must be pdf or pdfxml", source)
	}

	logger.Configure(c.Log.Level, c.Log.Format)
	color.NoColor = color.NoColor || c.UI.NoColor
	return c, nil
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		color.Red("Error: %v", err)
		stop()
		os.Exit(1)
	}
}
