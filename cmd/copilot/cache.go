package main

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the profile cache",
}

var cacheJSON bool

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the cached profiles",
	Args:  cobra.NoArgs,
	RunE:  runCacheShow,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached profile",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	cacheShowCmd.Flags().BoolVar(&cacheJSON, "json", false, "print the profiles as JSON")
	cacheCmd.AddCommand(cacheShowCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheShow(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	set, err := store.Load(cmd.Context())
	if err != nil {
		return err
	}
	profiles := set.Profiles()
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Link < profiles[j].Link })

	if cacheJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profiles)
	}
	a.printer.PrintProfiles(profiles)
	return nil
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	store, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Clear(cmd.Context()); err != nil {
		return err
	}
	a.logger.Info("profile cache cleared", zap.String("backend", a.cfg.Cache.Backend))
	return nil
}
