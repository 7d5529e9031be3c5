package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"igreels/pkg/checkpoint"
	"igreels/pkg/compiler"
	"igreels/pkg/config"
	"igreels/pkg/instagram"
	"igreels/pkg/logger"
	"igreels/pkg/metadata"
	"igreels/pkg/models"
	"igreels/pkg/ui"
)

var (
	// Compile command flags
	fromCheckpoint bool
	compileOutput  string
	compileTemp    string
	compileKeep    bool
)

// compileCmd joins previously harvested clips
var compileCmd = &cobra.Command{
	Use:   "compile [target]",
	Short: "Compile clips saved by an earlier harvest",
	Long: `Join the clips of an earlier harvest into a single video without opening
the browser again.

By default the clips are read from the manifest in the temporary directory.
With --from-checkpoint they are read from the checkpoint of the named
target instead, which also covers runs that were interrupted before the
manifest was written.`,
	Example: `  # Compile the clips listed in ./reels/manifest.json
  igreels compile

  # Compile what an interrupted run against alice saved
  igreels compile alice --from-checkpoint -o alice.mp4`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.Flags().BoolVar(&fromCheckpoint, "from-checkpoint", false, "read the clip list from the target's checkpoint")
	compileCmd.Flags().StringVarP(&compileOutput, "output", "o", "", "compilation file (default: compilation.mp4)")
	compileCmd.Flags().StringVar(&compileTemp, "temp-dir", "", "directory holding the clips and manifest (default: ./reels)")
	compileCmd.Flags().BoolVar(&compileKeep, "keep-temp", false, "keep the individual clips after compiling")
}

func runCompile(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if len(args) > 0 {
		flags["target"] = args[0]
	}
	if cmd.Flags().Changed("output") {
		flags["output"] = compileOutput
	}
	if cmd.Flags().Changed("temp-dir") {
		flags["temp-dir"] = compileTemp
	}
	if cmd.Flags().Changed("keep-temp") {
		flags["keep-temp"] = compileKeep
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return err
	}
	log := logger.GetLogger()

	files, err := collectClips(cfg, fromCheckpoint)
	if err != nil {
		ui.PrintError("No clips to compile", err.Error())
		return err
	}
	ui.PrintInfo("Clips", fmt.Sprintf("%d", len(files)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := compileAndClean(ctx, cfg, files, log); err != nil {
		ui.PrintError("Compilation failed", err.Error())
		return err
	}
	ui.PrintSuccess("Compilation written to " + cfg.Output.OutputPath)
	return nil
}

// collectClips lists the clips to compile, from the target's checkpoint or
// from the manifest in the temp directory
func collectClips(cfg *config.Config, useCheckpoint bool) ([]models.DownloadedFile, error) {
	var files []models.DownloadedFile
	if useCheckpoint {
		target := instagram.SanitizeUsername(cfg.Instagram.Target)
		if target == "" {
			return nil, errors.New("a target is required with --from-checkpoint")
		}
		mgr, err := checkpoint.NewManager(target)
		if err != nil {
			return nil, err
		}
		cp, err := mgr.Load()
		if err != nil {
			return nil, err
		}
		if cp == nil {
			return nil, fmt.Errorf("no checkpoint for %s", target)
		}
		files = cp.ExistingFiles()
	} else {
		dir := cfg.Output.TempDirectory
		manifest, err := metadata.Load(dir)
		if err != nil {
			return nil, err
		}
		files = manifest.Files(dir)
	}

	if len(files) == 0 {
		return nil, compiler.ErrNothingToCompile
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].Sequence < files[j].Sequence })
	return files, nil
}

// compileAndClean joins files into cfg.Output.OutputPath and removes the
// clips unless KeepTemp is set. The clips survive a failed compilation.
func compileAndClean(ctx context.Context, cfg *config.Config, files []models.DownloadedFile, log logger.Logger) error {
	ff := compiler.NewFFmpeg(cfg.Output.FFmpegPath, cfg.Output.Reencode, log)
	if err := ff.Available(); err != nil {
		return err
	}
	if err := ff.Compile(ctx, files, cfg.Output.OutputPath); err != nil {
		return err
	}

	if cfg.Output.KeepTemp {
		return nil
	}
	dir := cfg.Output.TempDirectory
	if err := os.Remove(filepath.Join(dir, metadata.ManifestFile)); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Failed to remove manifest")
	}
	if err := compiler.NewFileCleaner(dir, log).Cleanup(files); err != nil {
		ui.PrintWarning("Some clips could not be removed", err)
	}
	return nil
}
