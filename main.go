// imgsplit extracts the non-zero regions of a binary image into segment files.
//
// It scans the image in fixed-size blocks and writes each region between
// long zero runs to its own file, named by the region's starting byte
// offset. Sparse disk or flash dumps shrink to a handful of segment files
// that can later be written back at their recorded offsets to rebuild the
// image.
//
// Usage:
//
//	imgsplit [flags] <image> [outpattern]
//
// Flags:
//
//	-bs int           Block size in bytes (default 512)
//	-minskip int      Consecutive zero blocks that trigger a skip (default 1024)
//	-outdir string    Directory segment files are created in (default ".")
//	-config string    Path to configuration file (default: ~/.config/imgsplit/config.yaml)
//	-dry-run          Show what would be written without creating files
//	-verbose          Enable verbose logging
//	-version          Print version and exit
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"gitlab.com/tinyland/lab/imgsplit/config"
	"gitlab.com/tinyland/lab/imgsplit/monitor"
	"gitlab.com/tinyland/lab/imgsplit/pkg/segment"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	// Parse command line flags
	defaults := config.DefaultConfig()
	var (
		blockSize   = flag.Int("bs", defaults.BlockSize, "Block size in bytes")
		minSkip     = flag.Int("minskip", defaults.MinSkip, "Consecutive zero blocks that trigger a skip")
		outDir      = flag.String("outdir", defaults.OutDir, "Directory segment files are created in")
		configPath  = flag.String("config", "", "Path to configuration file")
		dryRun      = flag.Bool("dry-run", false, "Show what would be written without creating files")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
		showVersion = flag.Bool("version", false, "Print version and exit")
	)
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("imgsplit %s (%s) built %s\n", version, commit, date)
		os.Exit(0)
	}

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "imgsplit: missing required <image> argument")
		flag.Usage()
		os.Exit(2)
	}
	if flag.NArg() > 2 {
		fmt.Fprintln(os.Stderr, "imgsplit: too many arguments")
		flag.Usage()
		os.Exit(2)
	}
	imagePath := flag.Arg(0)

	// Load configuration first to get log file path
	if *configPath == "" {
		home, _ := os.UserHomeDir()
		*configPath = filepath.Join(home, ".config", "imgsplit", "config.yaml")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Explicitly set flags win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bs":
			cfg.BlockSize = *blockSize
		case "minskip":
			cfg.MinSkip = *minSkip
		case "outdir":
			cfg.OutDir = *outDir
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "imgsplit: %v\n", err)
		os.Exit(1)
	}

	pattern := segment.DefaultPattern(imagePath)
	if flag.NArg() == 2 {
		pattern, err = segment.ParsePattern(flag.Arg(1))
		if err != nil {
			fmt.Fprintf(os.Stderr, "imgsplit: %v\n", err)
			os.Exit(1)
		}
	}

	// Setup logging - write to stderr plus the log file when configured
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}

	var logWriter io.Writer = os.Stderr
	if cfg.LogFile != "" {
		if err := ensureLogDir(cfg.LogFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log directory: %v\n", err)
			os.Exit(1)
		}
		logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer logFile.Close()
		logWriter = io.MultiWriter(os.Stderr, logFile)
	}

	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: logLevel,
	}))

	preflight(logger, imagePath, cfg.OutDir)

	logger.Info("splitting image",
		"image", imagePath,
		"pattern", pattern.String(),
		"outdir", cfg.OutDir,
		"block_size", cfg.BlockSize,
		"min_skip", cfg.MinSkip,
	)

	res, err := segment.Extract(imagePath, segment.Options{
		OutDir:    cfg.OutDir,
		Pattern:   pattern,
		BlockSize: cfg.BlockSize,
		MinSkip:   cfg.MinSkip,
		DryRun:    *dryRun,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("extraction failed", "error", err)
		os.Exit(1)
	}

	msg := "extraction complete"
	if *dryRun {
		msg = "dry run complete"
	}
	logger.Info(msg,
		"segments", len(res.Segments),
		"read", humanize.IBytes(uint64(res.BytesRead)),
		"written", humanize.IBytes(uint64(res.BytesWritten)),
		"skipped", humanize.IBytes(uint64(res.BytesSkipped)),
	)
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "imgsplit - extract non-zero regions of a binary image into segment files\n\n")
	fmt.Fprintf(out, "Usage: imgsplit [flags] <image> [outpattern]\n\n")
	fmt.Fprintf(out, "  <image>       binary image file to split\n")
	fmt.Fprintf(out, "  [outpattern]  segment name pattern with one integer placeholder,\n")
	fmt.Fprintf(out, "                e.g. part_%%07d.bin (default: derived from the image\n")
	fmt.Fprintf(out, "                name, disk.img -> disk_0x%%08x.img)\n\n")
	fmt.Fprintf(out, "Flags:\n")
	flag.PrintDefaults()
}

// preflight warns when the output filesystem looks too small for the worst
// case, a single segment the size of the whole image. The run proceeds
// either way; zero skipping usually shrinks the output far below that.
func preflight(logger *slog.Logger, imagePath, outDir string) {
	info, err := os.Stat(imagePath)
	if err != nil {
		// The scanner surfaces this as a real error.
		return
	}

	check, err := monitor.CheckCapacity(outDir, info.Size())
	if err != nil {
		logger.Warn("could not check output capacity", "dir", outDir, "error", err)
		return
	}
	if !check.Fits {
		logger.Warn("output filesystem may be too small",
			"dir", outDir,
			"free", humanize.IBytes(check.Stats.Free),
			"image_size", humanize.IBytes(uint64(info.Size())),
		)
	}
}

func ensureLogDir(logFile string) error {
	dir := filepath.Dir(logFile)
	return os.MkdirAll(dir, 0755)
}
