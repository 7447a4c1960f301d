package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BadgerOps/tuner/internal/store"
)

var (
	favoritesLimit int
	favoriteName   string
	favoriteURL    string
)

func newFavoritesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "Manage bookmarked stations",
		Long: `Favorites are kept in the local SQLite database (server.db_path) and are
shared with the HTTP service.`,
		Example: `  tuner favorites list
  tuner favorites add 960e57c5-0601-11e8-ae97-52543be04c81
  tuner favorites remove 960e57c5-0601-11e8-ae97-52543be04c81`,
	}

	cmd.AddCommand(
		newFavoritesListCmd(),
		newFavoritesAddCmd(),
		newFavoritesRemoveCmd(),
	)

	return cmd
}

func newFavoritesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List favorites, newest first",
		Args:  cobra.NoArgs,
		RunE:  favoritesListRun,
	}
	cmd.Flags().IntVar(&favoritesLimit, "limit", 0, "maximum number of favorites (0 for all)")
	addJSONFlag(cmd)
	return cmd
}

func favoritesListRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	favs, err := st.ListFavorites(favoritesLimit)
	if err != nil {
		return err
	}

	if outputJSON {
		return printJSON(favs)
	}
	if len(favs) == 0 {
		fmt.Println("No favorites saved.")
		return nil
	}

	fmt.Printf("%-36s  %-32s %-4s %s\n", "UUID", "Name", "CC", "Added")
	fmt.Println(strings.Repeat("-", 96))
	for _, f := range favs {
		fmt.Printf("%-36s  %-32s %-4s %s\n", f.StationUUID, truncate(f.Name, 32), f.CountryCode, formatTime(f.AddedAt))
	}
	return nil
}

func newFavoritesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add STATION_UUID",
		Short: "Bookmark a station",
		Long: `Bookmark a station. Without --name and --url the station metadata is
fetched from the directory.`,
		Args: cobra.ExactArgs(1),
		RunE: favoritesAddRun,
	}
	cmd.Flags().StringVar(&favoriteName, "name", "", "station name")
	cmd.Flags().StringVar(&favoriteURL, "url", "", "stream URL")
	return cmd
}

func favoritesAddRun(cmd *cobra.Command, args []string) error {
	id, err := store.NormalizeStationUUID(args[0])
	if err != nil {
		return err
	}

	fav := &store.Favorite{StationUUID: id, Name: favoriteName, URL: favoriteURL}
	if fav.Name == "" || fav.URL == "" {
		if globalGateway == nil {
			return fmt.Errorf("gateway not initialized")
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		station, err := globalGateway.GetStationByUUID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to look up station %s: %w", id, err)
		}
		if fav.Name == "" {
			fav.Name = station.Name
		}
		if fav.URL == "" {
			fav.URL = station.URLResolved
			if fav.URL == "" {
				fav.URL = station.URL
			}
		}
		fav.Favicon = station.Favicon
		fav.CountryCode = station.CountryCode
		fav.Tags = station.Tags
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	if err := st.AddFavorite(fav); err != nil {
		return err
	}

	fmt.Printf("Added %s (%s)\n", fav.Name, fav.StationUUID)
	return nil
}

func newFavoritesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove STATION_UUID",
		Short: "Remove a bookmarked station",
		Args:  cobra.ExactArgs(1),
		RunE:  favoritesRemoveRun,
	}
}

func favoritesRemoveRun(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}

	if err := st.RemoveFavorite(args[0]); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%s is not a favorite", args[0])
		}
		return err
	}

	fmt.Printf("Removed %s\n", args[0])
	return nil
}
