package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BadgerOps/tuner/internal/radio"
)

var tagsLimit int

func newCountriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "countries",
		Short: "List countries with their station counts",
		Args:  cobra.NoArgs,
		RunE:  countriesRun,
	}
	addJSONFlag(cmd)
	return cmd
}

func countriesRun(cmd *cobra.Command, args []string) error {
	if globalGateway == nil {
		return fmt.Errorf("gateway not initialized")
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()

	countries, err := globalGateway.GetCountries(ctx)
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(countries)
	}
	fmt.Printf("%-4s %-40s %8s\n", "CC", "Country", "Stations")
	fmt.Println(strings.Repeat("-", 54))
	for _, c := range countries {
		fmt.Printf("%-4s %-40s %8d\n", c.ISO3166_1, truncate(c.Name, 40), c.StationCount)
	}
	return nil
}

func newTagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "List the most used station tags",
		Args:  cobra.NoArgs,
		RunE:  tagsRun,
	}
	cmd.Flags().IntVar(&tagsLimit, "limit", radio.DefaultLimit, "maximum number of tags")
	addJSONFlag(cmd)
	return cmd
}

func tagsRun(cmd *cobra.Command, args []string) error {
	if globalGateway == nil {
		return fmt.Errorf("gateway not initialized")
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()

	tags, err := globalGateway.GetTags(ctx, tagsLimit)
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(tags)
	}
	for _, t := range tags {
		fmt.Printf("%-40s %8d\n", truncate(t.Name, 40), t.StationCount)
	}
	return nil
}

func newClickCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "click STATION_UUID",
		Short: "Register a play of a station with the directory",
		Args:  cobra.ExactArgs(1),
		RunE:  clickRun,
	}
}

func clickRun(cmd *cobra.Command, args []string) error {
	if globalGateway == nil {
		return fmt.Errorf("gateway not initialized")
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()

	if !globalGateway.RecordStationClick(ctx, args[0]) {
		return fmt.Errorf("click for %s was not recorded", args[0])
	}
	fmt.Println("Click recorded.")
	return nil
}
