package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"planport/internal/render"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or edit the identity cache",
}

var cacheLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List identity cache entries",
	RunE:  runCacheLs,
}

var cacheRmCmd = &cobra.Command{
	Use:   "rm <local-key>",
	Short: "Drop a cache entry, forcing re-creation on the next run",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheRm,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheLsCmd)
	cacheCmd.AddCommand(cacheRmCmd)
}

func runCacheLs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	identityCache, err := openCache(cfg)
	if err != nil {
		return err
	}

	entries := identityCache.Snapshot()
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	renderer := newRenderer(cmd, cfg)
	if renderer.Format() == render.FormatTable {
		rows := make([][]string, 0, len(keys))
		for _, key := range keys {
			entry := entries[key]
			rows = append(rows, []string{key, string(entry.Kind), fmt.Sprintf("%d", entry.RemoteID), entry.RecordedAt})
		}
		return renderer.RenderTable([]string{"LOCAL KEY", "KIND", "REMOTE ID", "RECORDED"}, rows)
	}

	ordered := make([]map[string]interface{}, 0, len(keys))
	for _, key := range keys {
		entry := entries[key]
		ordered = append(ordered, map[string]interface{}{
			"local_key": key,
			"kind":      entry.Kind,
			"remote_id": entry.RemoteID,
			"recorded":  entry.RecordedAt,
		})
	}
	return renderer.RenderStructured(ordered)
}

func runCacheRm(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	identityCache, err := openCache(cfg)
	if err != nil {
		return err
	}
	if _, ok := identityCache.Lookup(args[0]); !ok {
		return fmt.Errorf("no cache entry for %q", args[0])
	}
	if err := identityCache.Remove(args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
	return nil
}
