package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"streetviewdl/pkg/logger"
	"streetviewdl/pkg/pipeline"
	"streetviewdl/pkg/sample"
	"streetviewdl/pkg/ui"
)

var pointsOut string

// sampleCmd represents the sample command
var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Preview the sample points of an area without calling the imagery service",
	Long: `Clip the extract and generate sample points exactly as a download would,
then print how many points the run would look up. With --out the points are
written as a GeoJSON FeatureCollection for inspection in a GIS.

No API key is needed.`,
	Example: `  streetviewdl sample -e berlin.osm.pbf --bbox 13.37,52.50,13.40,52.52 --spacing 25
  streetviewdl sample -e region.osm.pbf --aoi district.geojson --out points.geojson`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runSample(cmd); err != nil {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(sampleCmd)
	addAreaFlags(sampleCmd)
	sampleCmd.Flags().StringVar(&pointsOut, "out", "", "write the points as GeoJSON to this file")
}

func runSample(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		return err
	}

	in, err := pipeline.InputFromConfig(cfg)
	if err != nil {
		ui.PrintError("Invalid input", err.Error())
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p := pipeline.New(cfg, pipeline.Deps{Logger: logger.GetLogger()})
	points, err := p.Sample(ctx, in)
	if err != nil {
		reportStructural(err)
		return err
	}

	if pointsOut == "" {
		n := sample.Count(points)
		ui.PrintInfo("Sample points", humanize.Comma(int64(n)))
		ui.PrintInfo("Spacing", strconv.FormatFloat(in.Spacing, 'f', -1, 64)+" m ("+in.Mode.String()+")")
		return nil
	}

	fc := sample.FeatureCollection(points)
	data, err := json.Marshal(fc)
	if err != nil {
		ui.PrintError("Failed to encode points", err.Error())
		return err
	}
	if err := os.WriteFile(pointsOut, data, 0644); err != nil {
		ui.PrintError("Failed to write points", err.Error())
		return err
	}

	ui.PrintInfo("Sample points", humanize.Comma(int64(len(fc.Features))))
	ui.PrintSuccess("Points written to " + pointsOut)
	return nil
}
