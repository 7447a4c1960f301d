package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BadgerOps/tuner/internal/radio"
)

var stationsLimit int

func newStationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stations",
		Short: "Query the station directory",
		Long: `Query stations through the currently selected mirror. Results are ordered
by click count, most popular first.`,
		Example: `  tuner stations search "jazz fm"
  tuner stations popular --limit 20
  tuner stations country DE
  tuner stations tag ambient --json`,
	}

	cmd.PersistentFlags().IntVar(&stationsLimit, "limit", radio.DefaultLimit, "maximum number of stations")

	search := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search stations by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return stationsRun(cmd, func(gw *radio.Gateway) ([]radio.Station, error) {
				ctx, cancel := requestContext(cmd)
				defer cancel()
				return gw.SearchStationsByName(ctx, strings.Join(args, " "), stationsLimit)
			})
		},
	}
	popular := &cobra.Command{
		Use:   "popular",
		Short: "Show the most played stations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return stationsRun(cmd, func(gw *radio.Gateway) ([]radio.Station, error) {
				ctx, cancel := requestContext(cmd)
				defer cancel()
				return gw.GetPopularStations(ctx, stationsLimit)
			})
		},
	}
	country := &cobra.Command{
		Use:   "country CODE",
		Short: "List stations of a country (ISO 3166-1 alpha-2)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return stationsRun(cmd, func(gw *radio.Gateway) ([]radio.Station, error) {
				ctx, cancel := requestContext(cmd)
				defer cancel()
				return gw.GetStationsByCountry(ctx, args[0], stationsLimit)
			})
		},
	}
	tag := &cobra.Command{
		Use:   "tag TAG",
		Short: "List stations carrying a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return stationsRun(cmd, func(gw *radio.Gateway) ([]radio.Station, error) {
				ctx, cancel := requestContext(cmd)
				defer cancel()
				return gw.GetStationsByTag(ctx, args[0], stationsLimit)
			})
		},
	}

	for _, sub := range []*cobra.Command{search, popular, country, tag} {
		addJSONFlag(sub)
		cmd.AddCommand(sub)
	}

	return cmd
}

func stationsRun(cmd *cobra.Command, fetch func(gw *radio.Gateway) ([]radio.Station, error)) error {
	if globalGateway == nil {
		return fmt.Errorf("gateway not initialized")
	}

	stations, err := fetch(globalGateway)
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(stations)
	}
	printStations(stations)
	return nil
}

func printStations(stations []radio.Station) {
	if len(stations) == 0 {
		fmt.Println("No stations found.")
		return
	}

	fmt.Printf("%-36s  %-32s %-4s %-6s %5s %8s\n", "UUID", "Name", "CC", "Codec", "kbps", "Clicks")
	fmt.Println(strings.Repeat("-", 98))
	for _, s := range stations {
		fmt.Printf("%-36s  %-32s %-4s %-6s %5d %8d\n",
			s.StationUUID,
			truncate(s.Name, 32),
			s.CountryCode,
			truncate(s.Codec, 6),
			s.Bitrate,
			s.ClickCount,
		)
	}
}
