package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"BetaBasket/internal/calculator"
	"BetaBasket/internal/collector"
	"BetaBasket/internal/export"
	"BetaBasket/internal/model"
	"BetaBasket/internal/synthetic"

	"github.com/dustin/go-humanize"
	"github.com/google/subcommands"
)

type catalogCmd struct {
	filter string
	mock   bool
}

func (*catalogCmd) Name() string     { return "catalog" }
func (*catalogCmd) Synopsis() string { return "list tradable instruments with their last price" }
func (*catalogCmd) Usage() string {
	return `catalog [-filter <substr>] [-mock]

  Prints every instrument settled in the configured quote asset.
`
}

func (c *catalogCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.filter, "filter", "", "Only list symbols containing this substring")
	f.BoolVar(&c.mock, "mock", false, "Use generated market data instead of the exchange")
}

func (c *catalogCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return subcommands.ExitFailure
	}
	catalog := collector.NewCatalog(newFetcher(cfg, collector.LogSink{}, c.mock), cfg.Market.CatalogInterval, cfg.Market.Betas, nil)

	filter := strings.ToUpper(c.filter)
	list := catalog.Instruments(ctx)
	if len(list) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no instruments available")
		return subcommands.ExitFailure
	}
	for _, inst := range list {
		if filter != "" && !strings.Contains(inst.Symbol, filter) {
			continue
		}
		price := "n/a"
		if inst.HasPrice() {
			price = inst.LastPrice.String()
		}
		fmt.Printf("%-16s %16s  beta %.2f\n", inst.Symbol, price, inst.Beta)
	}
	return subcommands.ExitSuccess
}

type indexCmd struct {
	long     string
	short    string
	export   string
	load     string
	interval string
	mock     bool
}

func (*indexCmd) Name() string     { return "index" }
func (*indexCmd) Synopsis() string { return "compute a synthetic index once and print it" }
func (*indexCmd) Usage() string {
	return `index -long <SYM[,SYM...]> [-short <SYM[,SYM...]>] [-export <file.parquet>] [-mock]
index -load <file.parquet> [-interval <bar>]

  Selects the given legs, computes the beta-weighted index over the configured
  lookback and prints its summary. With -export the full series is written
  as a parquet file; -load summarizes a previously exported one.
`
}

func (c *indexCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.long, "long", "", "Comma-separated symbols to hold long")
	f.StringVar(&c.short, "short", "", "Comma-separated symbols to hold short")
	f.StringVar(&c.export, "export", "", "Write the index series to this parquet file")
	f.StringVar(&c.load, "load", "", "Summarize an exported parquet file instead of computing")
	f.StringVar(&c.interval, "interval", synthetic.DefaultInterval, "Bar interval of the loaded series, for annualization")
	f.BoolVar(&c.mock, "mock", false, "Use generated market data instead of the exchange")
}

func (c *indexCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.load != "" {
		return c.summarizeFile()
	}
	if c.long == "" && c.short == "" {
		fmt.Fprintln(os.Stderr, "Error: at least one of -long, -short or -load is required.")
		return subcommands.ExitUsageError
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		return subcommands.ExitFailure
	}

	fetcher := newFetcher(cfg, collector.LogSink{}, c.mock)
	catalog := collector.NewCatalog(fetcher, cfg.Market.CatalogInterval, cfg.Market.Betas, nil)
	engine := synthetic.New(catalog, fetcher,
		synthetic.WithInterval(cfg.Market.Interval),
		synthetic.WithLookback(cfg.Lookback()),
		synthetic.WithConcurrency(cfg.Market.Concurrency))

	var snap model.Snapshot
	for _, leg := range []struct {
		list string
		dir  model.Direction
	}{{c.long, model.Long}, {c.short, model.Short}} {
		for _, sym := range splitSymbols(leg.list) {
			snap, err = engine.Select(ctx, sym, leg.dir)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				return subcommands.ExitFailure
			}
		}
	}

	for _, sel := range snap.Selections {
		fmt.Printf("%-5s %-16s beta %.2f\n", sel.Direction, sel.Symbol, sel.Beta)
	}
	if snap.Empty() {
		fmt.Println("no overlapping history in the window")
		return subcommands.ExitFailure
	}
	fmt.Println()
	printSummary(os.Stdout, snap.Points, engine.Interval(), snap.Stats)

	if c.export != "" {
		if err := export.WriteIndex(c.export, snap.Points); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Printf("wrote %s\n", c.export)
	}
	return subcommands.ExitSuccess
}

func (c *indexCmd) summarizeFile() subcommands.ExitStatus {
	if !calculator.ValidInterval(c.interval) {
		fmt.Fprintf(os.Stderr, "Error: unknown interval %q\n", c.interval)
		return subcommands.ExitUsageError
	}
	points, err := export.ReadIndex(c.load)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if len(points) == 0 {
		fmt.Fprintf(os.Stderr, "Error: %s holds no points\n", c.load)
		return subcommands.ExitFailure
	}
	fmt.Printf("%s: %s .. %s\n", c.load,
		points[0].Time.Format("2006-01-02 15:04"), points[len(points)-1].Time.Format("2006-01-02 15:04"))
	printSummary(os.Stdout, points, c.interval, calculator.Stats(points, c.interval))
	return subcommands.ExitSuccess
}

// printSummary writes the last index level and its stats. points must not be empty.
func printSummary(w io.Writer, points []model.IndexPoint, interval string, st model.BasketStats) {
	last := points[len(points)-1]
	fmt.Fprintf(w, "index %.4f over %s %s bars\n", last.Value, humanize.Comma(int64(len(points))), interval)
	fmt.Fprintf(w, "return %+.2f%%  vol %.2f%%  sharpe %.2f  maxdd %.2f%%  rsi %.0f\n",
		st.TotalReturnPct, st.AnnualizedVolPct, st.Sharpe, st.MaxDrawdownPct, st.RSI)
}

func splitSymbols(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
