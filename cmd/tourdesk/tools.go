package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"tourdesk/internal/app"
	"tourdesk/internal/calendar"
	"tourdesk/internal/engine"
	"tourdesk/internal/money"
	"tourdesk/internal/status"
	"tourdesk/internal/transform"
)

func calendarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar YEAR MONTH",
		Short: "Print the 42-day grid for a month (1-12)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid year %q", args[0])
			}
			month, err := strconv.Atoi(args[1])
			if err != nil || month < 1 || month > 12 {
				return fmt.Errorf("month must be 1-12, got %q", args[1])
			}
			grid := calendar.BuildMonthGrid(year, month-1)
			if viper.GetBool("json") {
				return printJSON(grid[:])
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.SetTitle(fmt.Sprintf("%04d-%02d (%d days)", year, month, grid.DaysInMonth()))
			tw.AppendHeader(table.Row{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"})
			for _, week := range grid.Weeks() {
				row := make(table.Row, 0, len(week))
				for _, c := range week {
					if c.InCurrentMonth {
						row = append(row, c.Day)
					} else {
						row = append(row, fmt.Sprintf("(%d)", c.Day))
					}
				}
				tw.AppendRow(row)
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func totalsCmd() *cobra.Command {
	var file string
	var tax float64
	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Compute invoice totals from a YAML or JSON list of line items",
		Long:  "Reads line items (description, category, quantity, unit_price_cents, discount_bp) from --file or stdin. Without --tax the configured tax lookup applies.",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readLineItems(file)
			if err != nil {
				return err
			}
			if err := engine.ValidateLines(items); err != nil {
				return err
			}
			var rate money.TaxRateFunc
			if cmd.Flags().Changed("tax") {
				if tax < 0 || tax > 100 {
					return fmt.Errorf("--tax must be between 0 and 100")
				}
				rate = money.FlatTax(money.PercentFromFloat(tax))
			} else {
				cfg, err := app.LoadConfig(options())
				if err != nil {
					return err
				}
				rate = cfg.TaxRate()
			}
			totals := money.ComputeTotals(items, rate)
			if viper.GetBool("json") {
				return printJSON(totals)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Description", "Qty", "Unit", "Subtotal", "Discount", "Tax", "Total"})
			for i, li := range items {
				lt := totals.Lines[i]
				tw.AppendRow(table.Row{li.Description, li.Quantity, li.UnitPrice, lt.Subtotal, lt.Discount, lt.Tax, lt.Total})
			}
			tw.AppendFooter(table.Row{"Total", "", "", totals.Subtotal, totals.DiscountTotal, totals.TaxAmount, totals.Total})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "line items file (default stdin)")
	cmd.Flags().Float64Var(&tax, "tax", 0, "flat tax percent")
	return cmd
}

// readLineItems accepts a YAML or JSON array; JSON is valid YAML.
func readLineItems(file string) ([]money.LineItem, error) {
	var (
		data []byte
		err  error
	)
	if file == "" || file == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, err
	}
	var items []money.LineItem
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse line items: %w", err)
	}
	return items, nil
}

func statusCmd() *cobra.Command {
	st := &cobra.Command{Use: "status", Short: "Inspect the status transition tables"}
	st.AddCommand(statusNextCmd())
	st.AddCommand(statusGraphCmd())
	return st
}

func kindArg(s string) (status.Kind, status.Graph, error) {
	kind := status.Kind(strings.ToLower(s))
	g, ok := status.ForKind(kind)
	if !ok {
		return "", nil, fmt.Errorf("unknown kind %q (want one of %v)", s, status.Kinds())
	}
	return kind, g, nil
}

func statusNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next KIND STATUS",
		Short: "List the statuses reachable in one step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, g, err := kindArg(args[0])
			if err != nil {
				return err
			}
			current := status.Status(args[1])
			next := g.Next(current)
			if viper.GetBool("json") {
				return printJSON(map[string]any{"kind": kind, "status": current, "next": next, "terminal": g.IsTerminal(current)})
			}
			if len(next) == 0 {
				fmt.Printf("%s %s is terminal\n", kind, current)
				return nil
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Next", "Button"})
			for _, s := range next {
				tw.AppendRow(table.Row{s, status.Label(s)})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func statusGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph [KIND]",
		Short: "Print a transition table, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := status.Kinds()
			if len(args) == 1 {
				kind, _, err := kindArg(args[0])
				if err != nil {
					return err
				}
				kinds = []status.Kind{kind}
			}
			out := map[status.Kind]status.Graph{}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Kind", "Status", "Next"})
			for _, kind := range kinds {
				g, _ := status.ForKind(kind)
				out[kind] = g
				for _, s := range g.Statuses() {
					next := make([]string, 0, len(g[s]))
					for _, n := range g.Next(s) {
						next = append(next, string(n))
					}
					tw.AppendRow(table.Row{kind, s, strings.Join(next, ", ")})
				}
			}
			if viper.GetBool("json") {
				return printJSON(out)
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func packageCmd() *cobra.Command {
	pkg := &cobra.Command{Use: "package", Short: "Convert packages between backend and portal shapes"}
	pkg.AddCommand(packageNormalizeCmd())
	pkg.AddCommand(packageDenormalizeCmd())
	return pkg
}

func readInput(file string) ([]byte, error) {
	if file == "" || file == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(file)
}

func packageNormalizeCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Turn a backend package record into the portal shape",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			raw, err := transform.DecodeRecord(data)
			if err != nil {
				return fmt.Errorf("parse package record: %w", err)
			}
			return printJSON(transform.PackageFromBackend(raw))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "backend record JSON (default stdin)")
	return cmd
}

func packageDenormalizeCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "denormalize",
		Short: "Turn a portal package into the backend record shape",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(file)
			if err != nil {
				return err
			}
			var p transform.Package
			if err := json.Unmarshal(data, &p); err != nil {
				return fmt.Errorf("parse package: %w", err)
			}
			if err := engine.ValidatePackage(p); err != nil {
				return err
			}
			return printJSON(transform.PackageToBackend(p))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "package JSON (default stdin)")
	return cmd
}
