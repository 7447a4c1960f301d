package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BadgerOps/tuner/internal/mirror"
)

func newMirrorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirrors",
		Short: "Discover, probe and select directory mirrors",
		Long: `Inspect the mirror pool. Discovery tries DNS SRV records first, then the
A records of the catch-all host, then the configured fallback list.`,
		Example: `  tuner mirrors discover
  tuner mirrors probe
  tuner mirrors select --json`,
	}

	cmd.AddCommand(
		newMirrorsDiscoverCmd(),
		newMirrorsProbeCmd(),
		newMirrorsSelectCmd(),
	)

	return cmd
}

func newMirrorsDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List candidate mirrors",
		RunE:  mirrorsDiscoverRun,
	}
	addJSONFlag(cmd)
	return cmd
}

func mirrorsDiscoverRun(cmd *cobra.Command, args []string) error {
	if globalDiscovery == nil {
		return fmt.Errorf("discovery not initialized")
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()

	mirrors := globalDiscovery.Discover(ctx)
	sort.Strings(mirrors)

	if outputJSON {
		return printJSON(mirrors)
	}
	for _, m := range mirrors {
		fmt.Println(m)
	}
	return nil
}

func newMirrorsProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe [MIRROR...]",
		Short: "Probe mirrors and show their latency",
		Long: `Probe every discovered mirror in parallel, or only the mirrors given as
arguments, and print the results fastest first.`,
		RunE: mirrorsProbeRun,
	}
	addJSONFlag(cmd)
	return cmd
}

func mirrorsProbeRun(cmd *cobra.Command, args []string) error {
	if globalSelector == nil {
		return fmt.Errorf("selector not initialized")
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()

	mirrors := args
	if len(mirrors) == 0 {
		mirrors = globalDiscovery.Discover(ctx)
	}

	results := globalSelector.ProbeAll(ctx, mirrors)
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Latency < results[j].Latency
	})

	if outputJSON {
		return printJSON(results)
	}

	fmt.Printf("%-45s %-9s %10s  %s\n", "Mirror", "Status", "Latency", "Error")
	fmt.Println(strings.Repeat("-", 80))
	for _, r := range results {
		fmt.Printf("%-45s %-9s %10s  %s\n", r.Mirror, healthLabel(r), formatLatency(r), r.Error)
	}
	return nil
}

func newMirrorsSelectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select",
		Short: "Run a selection round and show the chosen mirror",
		RunE:  mirrorsSelectRun,
	}
	addJSONFlag(cmd)
	return cmd
}

func mirrorsSelectRun(cmd *cobra.Command, args []string) error {
	if globalCache == nil {
		return fmt.Errorf("selection cache not initialized")
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()

	if _, err := globalCache.Refresh(ctx); err != nil {
		return err
	}
	snap := globalCache.Snapshot()

	if outputJSON {
		return printJSON(mirror.Selection{Mirror: snap.SelectedMirror, Backups: snap.Backups})
	}

	selected := snap.HealthStats[snap.SelectedMirror]
	fmt.Printf("Selected: %s (%s)\n", snap.SelectedMirror, formatLatency(selected))
	fmt.Printf("At:       %s\n", formatTime(snap.SelectedAt))
	if len(snap.Backups) == 0 {
		fmt.Println("Backups:  none")
		return nil
	}
	fmt.Println("Backups:")
	for _, b := range snap.Backups {
		fmt.Printf("  %-45s %10s\n", b.Mirror, formatLatency(b))
	}
	return nil
}

func healthLabel(r mirror.HealthProbeResult) string {
	if r.Healthy {
		return "healthy"
	}
	return "unhealthy"
}
