package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ashureev/farm-connect/internal/domain"
	"github.com/ashureev/farm-connect/internal/refdata"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func addFormatFlag(cmd *cobra.Command, format *string) {
	cmd.Flags().StringVarP(format, "output", "o", formatTable, "output format: table, json or yaml")
}

func newSchemesCmd() *cobra.Command {
	var (
		query  string
		level  string
		format string
	)
	cmd := &cobra.Command{
		Use:   "schemes",
		Short: "List government schemes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := refdata.Default()
			if err != nil {
				return err
			}
			var schemes []domain.Scheme
			switch strings.ToLower(level) {
			case "", "all":
				schemes = catalog.Schemes(query)
			case string(domain.SchemeCentral):
				schemes = catalog.CentralSchemes(query)
			case string(domain.SchemeState):
				schemes = catalog.StateSchemes(query)
			default:
				return fmt.Errorf("unknown level %q (want central, state or all)", level)
			}
			return render(cmd.OutOrStdout(), format, schemes, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "LEVEL\tNAME\tBENEFIT")
				for _, s := range schemes {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Level, s.Name, s.Benefit)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "filter by name, benefit or eligibility")
	cmd.Flags().StringVar(&level, "level", "all", "central, state or all")
	addFormatFlag(cmd, &format)
	return cmd
}

func newPricesCmd() *cobra.Command {
	var query, format string
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "List mandi prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := refdata.Default()
			if err != nil {
				return err
			}
			prices := catalog.Prices(query)
			return render(cmd.OutOrStdout(), format, prices, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "CROP\tVARIETY\tMARKET\tPRICE\tCHANGE")
				for _, p := range prices {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%+.1f%%\n", p.Crop, p.Variety, p.Market, p.Price, p.Change)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "filter by crop, variety or market")
	addFormatFlag(cmd, &format)
	return cmd
}

func newWeatherCmd() *cobra.Command {
	var location, format string
	cmd := &cobra.Command{
		Use:   "weather",
		Short: "Show the weather report for a location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := refdata.Default()
			if err != nil {
				return err
			}
			w, ok := catalog.Weather(location)
			if !ok {
				return fmt.Errorf("--location is required")
			}
			return render(cmd.OutOrStdout(), format, w, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "%s\t%d°C\t%s\n", w.Location, w.Current.Temp, w.Current.Condition)
				fmt.Fprintln(tw, "DAY\tMAX\tMIN\tCONDITION")
				for _, d := range w.Forecast {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", d.Day, d.TempMax, d.TempMin, d.Condition)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&location, "location", "l", "", "location name")
	addFormatFlag(cmd, &format)
	return cmd
}

func render(out io.Writer, format string, v any, table func(*tabwriter.Writer)) error {
	switch strings.ToLower(format) {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatTable, "":
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
