package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"codeberg.org/snonux/wordaudio/internal/archive"
	"codeberg.org/snonux/wordaudio/internal/audio"
	"codeberg.org/snonux/wordaudio/internal/cli"
	"codeberg.org/snonux/wordaudio/internal/logger"
	"codeberg.org/snonux/wordaudio/internal/processor"
	"codeberg.org/snonux/wordaudio/internal/voices"
)

func main() {
	// Create flags instance
	flags := cli.NewFlags()

	// Create root command
	rootCmd := cli.CreateRootCommand(flags)

	// Set up command initialization
	cobra.OnInitialize(func() {
		cli.InitConfig(flags.CfgFile)
	})

	// Set the run function
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runCommand(cmd, flags)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Execute command
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func runCommand(cmd *cobra.Command, flags *cli.Flags) error {
	cli.LoadConfig(flags)
	logger.SetVerbose(flags.Verbose)
	ctx := cmd.Context()

	// Handle --archive flag
	if flags.Archive {
		path, err := archive.ArchiveOutput(flags.OutputDir)
		if err != nil {
			return fmt.Errorf("failed to archive output: %w", err)
		}
		fmt.Printf("Output directory archived to: %s\n", path)
		return nil
	}

	// Handle --list-voices flag
	if flags.ListVoices != "" {
		return listVoices(ctx, flags)
	}

	if flags.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.Timeout)
		defer cancel()
	}

	// Create processor
	proc, err := processor.NewProcessor(ctx, flags)
	if err != nil {
		return err
	}
	defer func() {
		if err := proc.Close(); err != nil {
			logger.Warn("Failed to release resources", "error", err)
		}
	}()

	summary, err := proc.Run(ctx)
	if errors.Is(err, processor.ErrPartialFailure) {
		for _, f := range summary.Failures {
			fmt.Fprintf(os.Stderr, "Skipped line %d (%s): %v\n", f.Line, f.Word, f.Err)
		}
		fmt.Printf("\nDone with errors! %d files saved to: %s\n", summary.Written, flags.OutputDir)
		return err
	}
	if err != nil {
		return err
	}

	if summary.AnkiFile != "" {
		fmt.Printf("Anki import file created: %s\n", summary.AnkiFile)
	}
	fmt.Printf("\nDone! %d files saved to: %s\n", summary.Written, flags.OutputDir)
	return nil
}

func listVoices(ctx context.Context, flags *cli.Flags) error {
	language := flags.ListVoices
	if language == "all" {
		language = ""
	} else if err := audio.ValidateLanguageCode(language); err != nil {
		return &cli.ConfigError{Option: "list-voices", Value: language, Err: err}
	}

	provider, err := audio.NewProvider(ctx, flags.ProviderConfig())
	if err != nil {
		return fmt.Errorf("failed to create %s backend: %w", flags.Backend, err)
	}
	defer audio.Close(provider)

	return voices.NewLister(provider, os.Stdout).ListVoices(ctx, language)
}
