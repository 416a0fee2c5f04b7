// Command bag-to-pcd replays a ROS bag, relaying transforms into a transform
// cache and writing every sensor_msgs/PointCloud2 message to
// <output_directory>/<seq>.pcd.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/banshee-data/bagtopcd/internal/config"
	"github.com/banshee-data/bagtopcd/internal/fsutil"
	"github.com/banshee-data/bagtopcd/internal/manifest"
	"github.com/banshee-data/bagtopcd/internal/monitoring"
	"github.com/banshee-data/bagtopcd/internal/replay"
	"github.com/banshee-data/bagtopcd/internal/tf"
	"github.com/banshee-data/bagtopcd/internal/timeutil"
	"github.com/banshee-data/bagtopcd/internal/version"
)

const (
	exitOK      = 0
	exitFailure = -1
)

const usageLine = "Usage: bag-to-pcd [flags] <log_file> <channel_or_topic> <output_directory> [<target_frame>]"

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// run executes one replay and returns the process exit code. Per-cloud export
// failures are logged and do not change the exit code.
func run(args []string, stderr io.Writer) int {
	logger := log.New(stderr, "", log.LstdFlags)
	monitoring.SetLogger(logger.Printf)

	fs := flag.NewFlagSet("bag-to-pcd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a JSON export config")
	format := fs.String("format", string(config.DefaultEncoding), "PCD encoding: ascii, binary or binary_compressed")
	pace := fs.Duration("pace", config.DefaultPacingDelay, "wait after each relayed transform batch")
	manifestPath := fs.String("manifest", "", "record exports in this SQLite manifest")
	verbose := fs.Bool("v", false, "log relay failures and other debug output")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, usageLine)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitFailure
	}

	if *showVersion {
		fmt.Fprintf(stderr, "bag-to-pcd %s\n", version.String())
		return exitOK
	}

	if fs.NArg() < 3 {
		fs.Usage()
		return exitFailure
	}
	bagPath, topic, outDir := fs.Arg(0), fs.Arg(1), fs.Arg(2)
	var targetFrame string
	if fs.NArg() > 3 {
		// Accepted for compatibility; clouds are written in their own frame.
		targetFrame = fs.Arg(3)
	}

	cfg := config.EmptyExportConfig()
	if *configPath != "" {
		fileCfg, err := config.LoadExportConfig(*configPath)
		if err != nil {
			logger.Printf("Failed to load config: %v", err)
			return exitFailure
		}
		cfg.Merge(fileCfg)
	}
	cfg.Merge(flagOverrides(fs, *format, *pace, *manifestPath, *verbose))
	if err := cfg.Validate(); err != nil {
		logger.Printf("Invalid options: %v", err)
		return exitFailure
	}
	monitoring.SetVerbose(cfg.GetVerbose())

	src, err := replay.OpenBag(bagPath)
	if err != nil {
		logger.Printf("%v", err)
		return exitFailure
	}
	defer src.Close()
	monitoring.Debugf("Opened %s: %s", bagPath, src.Summary())

	osfs := fsutil.OSFileSystem{}
	if err := replay.EnsureDir(osfs, outDir); err != nil {
		logger.Printf("%v", err)
		return exitFailure
	}

	logger.Printf("Saving recorded sensor_msgs::PointCloud2 messages on topic %s to %s", topic, outDir)

	clock := timeutil.RealClock{}
	started := clock.Now()
	enc := cfg.GetEncoding()
	exporter := replay.NewExporter(osfs, outDir, enc)

	var runLog *manifest.RunLog
	if path := cfg.GetManifestPath(); path != "" {
		var m *manifest.Manifest
		m, runLog = startManifestRun(logger, path, manifest.Run{
			BagPath:     bagPath,
			Topic:       topic,
			TargetFrame: targetFrame,
			OutputDir:   outDir,
			Encoding:    string(enc),
			Started:     started,
		})
		if m != nil {
			defer m.Close()
			exporter.SetRecorder(runLog)
		}
	}

	buffer := tf.NewBuffer()
	relay := replay.NewRelay(buffer, clock, cfg.GetPacingDelay())
	stats, err := replay.NewDispatcher(src, relay, exporter).Run()

	if runLog != nil {
		totals := manifest.Totals{Records: stats.Records, Exported: stats.Exported, Failed: stats.ExportFailures}
		if ferr := runLog.Finish(clock.Now(), totals); ferr != nil {
			logger.Printf("manifest: %v", ferr)
		}
	}

	if err != nil {
		logger.Printf("%v", err)
		return exitFailure
	}

	logger.Printf("Replay finished in %s: %s", clock.Since(started).Round(time.Millisecond), stats)
	if stats.Exported > 0 {
		logger.Printf("Points per cloud: mean %.1f, stddev %.1f", stats.MeanPoints, stats.StdDevPoints)
	}
	monitoring.Debugf("Transform cache: %d frame pairs, %d updates, %d relay failures",
		buffer.Len(), buffer.Published(), stats.RelayFailures)
	return exitOK
}

// flagOverrides returns a config holding only the flags set on the command
// line, so they take precedence over the config file without masking it.
func flagOverrides(fs *flag.FlagSet, format string, pace time.Duration, manifestPath string, verbose bool) *config.ExportConfig {
	o := config.EmptyExportConfig()
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "format":
			o.Format = &format
		case "pace":
			s := pace.String()
			o.PacingDelay = &s
		case "manifest":
			o.ManifestPath = &manifestPath
		case "v":
			o.Verbose = &verbose
		}
	})
	return o
}

// startManifestRun opens the manifest and registers a run. Manifest problems
// never stop a replay; both results are nil instead.
func startManifestRun(logger *log.Logger, path string, r manifest.Run) (*manifest.Manifest, *manifest.RunLog) {
	m, err := manifest.Open(path)
	if err != nil {
		logger.Printf("manifest disabled: %v", err)
		return nil, nil
	}
	runLog, err := m.StartRun(r)
	if err != nil {
		logger.Printf("manifest disabled: %v", err)
		m.Close()
		return nil, nil
	}
	logger.Printf("Recording run %s in %s", runLog.ID(), path)
	return m, runLog
}
