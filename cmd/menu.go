package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tainan-eats/storedir/internal/reconcile"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Manage extracted menu data",
}

var menuImportCmd = &cobra.Command{
	Use:   "import <menu_data.json>",
	Short: "Load menu enrichment output into the catalog",
	Long:  "Reads a {placeId: {store_name, items: [...]}} file and inserts the items not yet present. Items with an unknown confidence grade are skipped.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := readMenuFile(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats := reconcile.ImportMenu(ctx, st, data)
		zap.L().Info("menu import complete",
			zap.Int("stores", stats.Stores),
			zap.Int("inserted", stats.Inserted),
			zap.Int("failed", stats.Failed),
		)
		formatMenuStats(os.Stdout, stats)
		return nil
	},
}

func init() {
	menuCmd.AddCommand(menuImportCmd)
	rootCmd.AddCommand(menuCmd)
}

func readMenuFile(path string) (reconcile.MenuData, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, eris.Wrapf(err, "menu import: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return reconcile.DecodeMenuData(f)
}

func formatMenuStats(out io.Writer, s reconcile.MenuStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Stores:\t%d\n", s.Stores)
	_, _ = fmt.Fprintf(w, "Inserted:\t%d\n", s.Inserted)
	_, _ = fmt.Fprintf(w, "Already present:\t%d\n", s.Existing)
	_, _ = fmt.Fprintf(w, "Skipped:\t%d\n", s.Skipped)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_ = w.Flush()
}
