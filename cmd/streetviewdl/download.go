package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"streetviewdl/pkg/auth"
	"streetviewdl/pkg/config"
	errs "streetviewdl/pkg/errors"
	"streetviewdl/pkg/logger"
	"streetviewdl/pkg/pipeline"
	"streetviewdl/pkg/ui"
	"streetviewdl/pkg/ui/tui"
)

var (
	// Area and extract flags, shared by download, sample and clip
	extractPath  string
	aoiPath      string
	bboxString   string
	spacing      float64
	samplingMode string

	// Download command flags
	outputDir          string
	geojsonPath        string
	headings           []float64
	metadataOnly       bool
	overwrite          bool
	concurrency        int
	resolveConcurrency int
	rateLimit          int
	maxAttempts        int
	searchRadius       float64
	profileName        string
	noCache            bool
	useTUI             bool
)

// exit codes of the download command
const (
	exitFailures    = 2
	exitInterrupted = 130
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download Street View panoramas along the roads of an area",
	Long: `Clip the road extract to the area of interest, sample points along every
road, look up the nearest panorama for each point and download its imagery.

An API key is required. It is read, in order, from:
  - the --config file or STREETVIEWDL_API_KEY
  - the profile named by --profile, stored with 'streetviewdl auth login'
  - the default stored profile

Lookups are cached between runs, so an interrupted run can simply be
started again. Panoramas already on disk are skipped unless --overwrite
is given.`,
	Example: `  # Download every panorama within a bounding box
  streetviewdl download --extract berlin.osm.pbf --bbox 13.37,52.50,13.40,52.52

  # Use a polygon, sample every 30 m and save four headings per panorama
  streetviewdl download -e region.osm.pbf --aoi district.geojson --spacing 30 --headings 0,90,180,270

  # Only record metadata and export it as GeoJSON
  streetviewdl download -e region.osm.pbf --aoi district.geojson --metadata-only --geojson panoramas.geojson

  # Full screen dashboard
  streetviewdl download -e region.osm.pbf --aoi district.geojson --tui`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runDownload(cmd))
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	addAreaFlags(downloadCmd)
	addDownloadFlags(downloadCmd)

	// download is also the default command
	addAreaFlags(rootCmd)
	addDownloadFlags(rootCmd)
	rootCmd.Args = cobra.NoArgs
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("extract") && configFile == "" && os.Getenv(config.EnvPrefix+"EXTRACT") == "" {
			return cmd.Help()
		}
		os.Exit(runDownload(cmd))
		return nil
	}
}

func addAreaFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&extractPath, "extract", "e", "", "OSM extract (.osm.pbf) or GeoJSON road lines")
	cmd.Flags().StringVar(&aoiPath, "aoi", "", "area of interest as a GeoJSON polygon file")
	cmd.Flags().StringVar(&bboxString, "bbox", "", "area of interest as min_lon,min_lat,max_lon,max_lat")
	cmd.Flags().Float64Var(&spacing, "spacing", 0, "distance between sample points in metres (default 20)")
	cmd.Flags().StringVar(&samplingMode, "mode", "", "sampling mode: fixed or even")
}

func addDownloadFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default ./streetview)")
	cmd.Flags().StringVar(&geojsonPath, "geojson", "", "export resolved panoramas to this GeoJSON file")
	cmd.Flags().Float64SliceVar(&headings, "headings", nil, "camera headings in degrees; empty follows the road")
	cmd.Flags().BoolVar(&metadataOnly, "metadata-only", false, "record metadata without downloading images")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "download images that already exist")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "concurrent image downloads (default 8)")
	cmd.Flags().IntVar(&resolveConcurrency, "resolve-concurrency", 0, "concurrent metadata lookups (default 16)")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "requests per minute shared by lookups and downloads")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "attempts per request before giving up")
	cmd.Flags().Float64Var(&searchRadius, "radius", 0, "panorama search radius in metres (default 50)")
	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "stored credential profile to use")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "ignore and do not update the lookup cache")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "use the full screen dashboard")
}

// commandFlags collects the flags the user actually set
func commandFlags(cmd *cobra.Command) map[string]interface{} {
	flags := baseFlags()
	set := func(name, key string, value interface{}) {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			flags[key] = value
		}
	}

	set("extract", "extract", extractPath)
	set("aoi", "aoi", aoiPath)
	set("bbox", "bbox", bboxString)
	set("spacing", "spacing", spacing)
	set("mode", "sampling-mode", samplingMode)
	set("output", "output", outputDir)
	set("geojson", "geojson", geojsonPath)
	set("headings", "headings", headings)
	set("metadata-only", "metadata-only", metadataOnly)
	set("overwrite", "overwrite", overwrite)
	set("concurrency", "concurrency", concurrency)
	set("resolve-concurrency", "resolve-concurrency", resolveConcurrency)
	set("rate-limit", "requests-per-minute", rateLimit)
	set("max-attempts", "max-attempts", maxAttempts)
	set("radius", "search-radius", searchRadius)
	set("profile", "profile", profileName)
	set("no-cache", "no-cache", noCache)
	return flags
}

// loadConfig loads configuration and sets up the global logger
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, commandFlags(cmd))
	if err != nil {
		return nil, err
	}
	if useTUI && !verbose && cfg.Logging.File == "" {
		// console logs would tear the dashboard
		cfg.Logging.Level = "error"
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runDownload(cmd *cobra.Command) int {
	cfg, err := loadConfig(cmd)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return 1
	}
	log := logger.GetLogger()

	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("Credential store unavailable")
	} else if err := manager.Apply(&cfg.Imagery); err != nil && !errors.Is(err, auth.ErrCredentialsNotFound) {
		ui.PrintError("Failed to read stored credentials", err.Error())
		return 1
	}
	if err := cfg.ValidateCredentials(); err != nil {
		ui.PrintError(err.Error())
		auth.ShowQuickGuide()
		return 1
	}

	in, err := pipeline.InputFromConfig(cfg)
	if err != nil {
		ui.PrintError("Invalid input", err.Error())
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p, err := pipeline.Open(cfg, log)
	if err != nil {
		ui.PrintError("Failed to start", err.Error())
		return 1
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.WithError(err).Warn("Failed to close run state")
		}
	}()

	var display ui.Display
	var dash *tui.TUI
	switch {
	case useTUI && term.IsTerminal(int(os.Stdout.Fd())):
		dash = tui.NewTUI(cancel)
		dash.Start()
		display = dash
	case quiet:
	default:
		if useTUI {
			ui.PrintWarning("stdout is not a terminal, using the plain progress display")
		}
		ui.PrintInfo("Extract", in.Extract)
		ui.PrintInfo("Output", cfg.Output.Directory)
		display = ui.NewProgressDisplay(os.Stderr, verbose)
	}
	if display != nil {
		p.SetObserver(display)
	}

	report, err := p.Run(ctx, in)
	if display != nil {
		display.Close()
	}
	if dash != nil && dash.Err() != nil {
		log.WithError(dash.Err()).Warn("Dashboard exited with an error")
	}

	notifier := newNotifier()
	if err != nil {
		logger.WithError(err).Error("Run failed")
		reportStructural(err)
		notifier.SendError("Run failed", err.Error())
		return 1
	}

	if !quiet {
		ui.PrintSummary(os.Stdout, report)
	}

	failures := len(report.ResolveFailures) + len(report.DownloadFailures)
	switch {
	case report.Cancelled:
		notifier.SendError("Run interrupted", fmt.Sprintf("%d panoramas saved", report.Stats.DownloadsSucceeded))
		return exitInterrupted
	case failures > 0:
		notifier.SendError("Run finished with failures", fmt.Sprintf("%d failed", failures))
		return exitFailures
	default:
		notifier.SendSuccess("Run finished", fmt.Sprintf("%d panoramas", report.Panoramas))
		return 0
	}
}

// reportStructural prints a hint for the errors a user can fix
func reportStructural(err error) {
	var crs *errs.CrsMismatchError
	var empty *errs.EmptyExtractError
	switch {
	case errors.As(err, &crs):
		ui.PrintError("Coordinate systems do not match", err.Error())
		fmt.Println("\nReproject the extract or the area of interest to EPSG:4326.")
	case errors.As(err, &empty):
		ui.PrintError("No roads inside the area of interest", err.Error())
		fmt.Println("\nCheck that the area lies within the extract and uses lon,lat order.")
	default:
		ui.PrintError("Run failed", err.Error())
	}
}

// quietNotifier drops events; used when notifications are off
type quietNotifier struct{}

func (quietNotifier) SendError(title, message string)   {}
func (quietNotifier) SendSuccess(title, message string) {}

type runNotifier interface {
	SendError(title, message string)
	SendSuccess(title, message string)
}

func newNotifier() runNotifier {
	if !notifications {
		return quietNotifier{}
	}
	return ui.NewNotifier()
}
