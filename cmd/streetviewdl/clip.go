package main

import (
	"context"
	"os"
	"os/signal"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"streetviewdl/pkg/logger"
	"streetviewdl/pkg/pipeline"
	"streetviewdl/pkg/ui"
)

var clipOut string

// clipCmd represents the clip command
var clipCmd = &cobra.Command{
	Use:   "clip",
	Short: "Cut the road network of an extract down to an area of interest",
	Long: `Load the roads of an OSM extract, keep the parts inside the area of
interest and write them as GeoJSON lines. The output can be passed back to
--extract, which is much faster than reading a large PBF file on every run.`,
	Example: `  streetviewdl clip -e germany.osm.pbf --aoi berlin.geojson --out berlin-roads.geojson
  streetviewdl download -e berlin-roads.geojson --aoi berlin.geojson`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runClip(cmd); err != nil {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(clipCmd)
	clipCmd.Flags().StringVarP(&extractPath, "extract", "e", "", "OSM extract (.osm.pbf) or GeoJSON road lines")
	clipCmd.Flags().StringVar(&aoiPath, "aoi", "", "area of interest as a GeoJSON polygon file")
	clipCmd.Flags().StringVar(&bboxString, "bbox", "", "area of interest as min_lon,min_lat,max_lon,max_lat")
	clipCmd.Flags().StringVar(&clipOut, "out", "", "output GeoJSON file")
	_ = clipCmd.MarkFlagRequired("out")
}

func runClip(cmd *cobra.Command) error {
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
	net, err := p.Prepare(ctx, in)
	if err != nil {
		reportStructural(err)
		return err
	}

	if err := net.WriteGeoJSON(clipOut); err != nil {
		ui.PrintError("Failed to write network", err.Error())
		return err
	}

	ui.PrintInfo("Road segments", humanize.Comma(int64(net.Len())))
	classes := net.Classes()
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == "" {
			continue
		}
		ui.PrintInfo("  "+name, humanize.Comma(int64(classes[name])))
	}
	ui.PrintSuccess("Network written to " + clipOut)
	return nil
}
