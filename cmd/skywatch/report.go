package main

import (
	"fmt"
	"io"
	"iter"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/star/skywatch/internal/objcache"
	"github.com/star/skywatch/internal/refresh"
	"github.com/star/skywatch/internal/transform"
	"github.com/star/skywatch/internal/visibility"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the cached objects with their altitude and azimuth at the window endpoints",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().Bool("visible-only", false, "hide objects observable at neither endpoint")
	reportCmd.Flags().Float64("max-magnitude", 0, "hide objects fainter than this magnitude")
	viper.BindPFlag("report.visible_only", reportCmd.Flags().Lookup("visible-only"))
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	filter := refresh.Filter{
		VisibleOnly:  viper.GetBool("report.visible_only"),
		MaxMagnitude: cfg.MaxMagnitude,
	}
	if cmd.Flags().Changed("max-magnitude") {
		m, _ := cmd.Flags().GetFloat64("max-magnitude")
		filter.MaxMagnitude = &m
	}

	snap, err := objcache.Open(cfg.CachePath, logger).Load()
	if err != nil {
		logger.Error("loading cache failed", "error", err)
		return err
	}

	logger.Debug("rendering report",
		"objects", snap.Len(),
		"site_start", cfg.Site.Start,
		"site_end", cfg.Site.End,
	)
	return renderReport(cmd.OutOrStdout(), cfg.Site, refresh.Filtered(refresh.Entries(snap, cfg.Site), filter))
}

// renderReport writes one aligned row per entry. Angles that are not
// observable print as "-".
func renderReport(w io.Writer, site visibility.Site, entries iter.Seq[refresh.Entry]) error {
	moon := transform.MoonAt(site.Start)
	fmt.Fprintf(w, "site %.4f, %.4f  window %s .. %s\n",
		site.LatitudeDeg, site.LongitudeDeg,
		site.Start.Format("2006-01-02 15:04Z"), site.End.Format("2006-01-02 15:04Z"))
	fmt.Fprintf(w, "moon %.0f%% illuminated, %s\n\n", moon.Illumination*100, moon.Phase)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OBJECT\tNAME\tKIND\tMAG\tSTART ALT\tSTART AZ\tEND ALT\tEND AZ\tNOTE")
	rows := 0
	for e := range entries {
		rec := e.Record
		mag := "-"
		if rec.Brightness != nil {
			mag = strconv.FormatFloat(*rec.Brightness, 'f', 1, 64)
		}
		note := ""
		if e.Err != nil {
			note = e.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID, rec.Name, rec.Kind, mag,
			e.Window.Start.Altitude, e.Window.Start.Azimuth,
			e.Window.End.Altitude, e.Window.End.Azimuth,
			note,
		)
		rows++
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if rows == 0 {
		fmt.Fprintln(w, "(no objects)")
	}
	return nil
}
