package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tainan-eats/storedir/internal/catalog"
	"github.com/tainan-eats/storedir/internal/export"
	"github.com/tainan-eats/storedir/internal/geo"
	"github.com/tainan-eats/storedir/internal/model"
	"github.com/tainan-eats/storedir/internal/query"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and export the store catalog",
}

// -- catalog list --

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stores in catalog order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		filter, err := storeFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 {
			filter.Limit = limit
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stores, err := st.ListStores(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "catalog list")
		}
		if len(stores) == 0 {
			fmt.Fprintln(os.Stderr, "No stores found.")
			return nil
		}
		rows := make([]query.Ranked, len(stores))
		for i, s := range stores {
			rows[i] = query.Ranked{Store: s}
		}
		formatStoreList(os.Stdout, rows)
		return nil
	},
}

// -- catalog search --

var catalogSearchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search the active catalog like the API does",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		q, err := searchQueryFromFlags(cmd, args)
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		q.Location = loc

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res := query.NewService(st).Search(ctx, q)
		if res.Unavailable {
			return res.Err
		}
		if len(res.Stores) == 0 {
			fmt.Fprintln(os.Stderr, "No stores found.")
			return nil
		}
		formatStoreList(os.Stdout, res.Stores)
		return nil
	},
}

// -- catalog districts --

var catalogDistrictsCmd = &cobra.Command{
	Use:   "districts",
	Short: "Count active stores per district",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counts, err := query.NewService(st).Districts(ctx)
		if err != nil {
			return eris.Wrap(err, "catalog districts")
		}
		formatDistrictCounts(os.Stdout, counts)
		return nil
	},
}

// -- catalog export --

var catalogExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the catalog to an XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			return eris.New("catalog export: --out is required")
		}
		filter, err := storeFilterFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stores, err := st.ListStores(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "catalog export")
		}
		if err := export.WriteXLSX(out, stores); err != nil {
			return err
		}
		zap.L().Info("catalog exported", zap.String("path", out), zap.Int("stores", len(stores)))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{catalogListCmd, catalogSearchCmd, catalogExportCmd} {
		c.Flags().String("district", "", "only stores in this district (e.g. 中西區)")
		c.Flags().Float64("min-rating", 0, "minimum rating, 0-5")
	}
	catalogListCmd.Flags().Bool("inactive", false, "include inactive stores")
	catalogListCmd.Flags().Int("limit", 50, "max number of stores to display")
	catalogExportCmd.Flags().Bool("inactive", false, "include inactive stores")
	catalogExportCmd.Flags().String("out", "", "destination .xlsx file")

	addSearchFlags(catalogSearchCmd)

	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogSearchCmd)
	catalogCmd.AddCommand(catalogDistrictsCmd)
	catalogCmd.AddCommand(catalogExportCmd)
	rootCmd.AddCommand(catalogCmd)
}

func addSearchFlags(c *cobra.Command) {
	c.Flags().String("time-mode", "all", "all, now, or custom")
	c.Flags().Int("day", 0, "day of week for custom mode (0=Sunday)")
	c.Flags().String("time", "", "time of day for custom mode (HH:MM)")
	c.Flags().Float64("lat", 0, "user latitude, ranks results by distance")
	c.Flags().Float64("lng", 0, "user longitude, ranks results by distance")
}

func ratingTenthsFlag(cmd *cobra.Command) (int, error) {
	f, _ := cmd.Flags().GetFloat64("min-rating")
	if f < 0 || f > 5 {
		return 0, eris.Errorf("--min-rating must be between 0 and 5, got %v", f)
	}
	return int(math.Round(f * 10)), nil
}

func storeFilterFromFlags(cmd *cobra.Command) (catalog.StoreFilter, error) {
	tenths, err := ratingTenthsFlag(cmd)
	if err != nil {
		return catalog.StoreFilter{}, err
	}
	district, _ := cmd.Flags().GetString("district")
	inactive, _ := cmd.Flags().GetBool("inactive")
	return catalog.StoreFilter{
		District:        strings.TrimSpace(district),
		MinRatingTenths: tenths,
		IncludeInactive: inactive,
	}, nil
}

func searchQueryFromFlags(cmd *cobra.Command, args []string) (query.Query, error) {
	var q query.Query
	if len(args) > 0 {
		q.SearchText = strings.TrimSpace(args[0])
	}
	district, _ := cmd.Flags().GetString("district")
	q.District = strings.TrimSpace(district)

	tenths, err := ratingTenthsFlag(cmd)
	if err != nil {
		return q, err
	}
	q.MinRatingTenths = tenths

	mode, _ := cmd.Flags().GetString("time-mode")
	switch query.TimeMode(mode) {
	case "", query.TimeAll:
		q.TimeMode = query.TimeAll
	case query.TimeNow:
		q.TimeMode = query.TimeNow
	case query.TimeCustom:
		q.TimeMode = query.TimeCustom
		q.DayOfWeek, _ = cmd.Flags().GetInt("day")
		if !geo.ValidDay(q.DayOfWeek) {
			return q, eris.Errorf("--day must be 0-6, got %d", q.DayOfWeek)
		}
		q.TimeOfDay, _ = cmd.Flags().GetString("time")
	default:
		return q, eris.Errorf("unknown --time-mode %q", mode)
	}

	if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
		lat, _ := cmd.Flags().GetFloat64("lat")
		lng, _ := cmd.Flags().GetFloat64("lng")
		p := geo.LatLng{Lat: lat, Lng: lng}
		if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lng") || !p.Valid() {
			return q, eris.New("--lat and --lng must both be valid coordinates")
		}
		q.UserLocation = &p
	}
	return q, nil
}

// formatStoreList writes a tabular list of stores to w. The distance column
// is shown only when at least one row has a distance.
func formatStoreList(out io.Writer, rows []query.Ranked) {
	withDistance := false
	for _, r := range rows {
		if r.DistanceKM != nil {
			withDistance = true
			break
		}
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := "ID\tNAME\tDISTRICT\tRATING\tREVIEWS\tSTATUS"
	if withDistance {
		header += "\tKM"
	}
	_, _ = fmt.Fprintln(w, header)

	for _, r := range rows {
		s := r.Store
		name := s.Name
		if len([]rune(name)) > 20 {
			name = string([]rune(name)[:19]) + "…"
		}
		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%d\t%s",
			s.ProviderID, name, s.District, ratingText(model.ExposeRating(s.RatingTenths)), s.ReviewCount, s.BusinessStatus)
		if withDistance {
			km := "-"
			if r.DistanceKM != nil {
				km = fmt.Sprintf("%.2f", *r.DistanceKM)
			}
			line += "\t" + km
		}
		_, _ = fmt.Fprintln(w, line)
	}
	_ = w.Flush()
}

func formatDistrictCounts(out io.Writer, counts []query.DistrictCount) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	total := 0
	for _, c := range counts {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", c.District, c.Count)
		total += c.Count
	}
	_, _ = fmt.Fprintf(w, "Total\t%d\n", total)
	_ = w.Flush()
}
