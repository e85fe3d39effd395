// Command analyze runs one analysis pass over recent candles and prints the
// trend segments and convergence signals per symbol.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ConvergeWatch/internal/convergence"
	"ConvergeWatch/internal/domain/models"
	drepo "ConvergeWatch/internal/domain/repository"
	domsvc "ConvergeWatch/internal/domain/service"
	internalrepo "ConvergeWatch/internal/repository"
	"ConvergeWatch/internal/service/binance"
	"ConvergeWatch/internal/usecase"
	pkgch "ConvergeWatch/pkg/clickhouse"
	"ConvergeWatch/pkg/config"
	applogger "ConvergeWatch/pkg/logger"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/sync/errgroup"
)

type candleSource interface {
	load(ctx context.Context, symbol string, tf drepo.Timeframe, n int) ([]models.Candle, error)
}

type binanceSource struct{ h *binance.History }

func (s binanceSource) load(ctx context.Context, symbol string, tf drepo.Timeframe, n int) ([]models.Candle, error) {
	return s.h.Klines(ctx, symbol, tf, n)
}

type clickhouseSource struct{ store *internalrepo.CHCandleStore }

func (s clickhouseSource) load(ctx context.Context, symbol string, tf drepo.Timeframe, n int) ([]models.Candle, error) {
	return s.store.GetLatestNCandles(ctx, symbol, n, tf)
}

func main() {
	configPath := flag.String("config", "", "optional config file; supplies analysis defaults and clickhouse settings")
	symbols := flag.String("symbols", "BTCUSDT", "comma separated symbols")
	tfFlag := flag.String("tf", "1m", "candle interval")
	n := flag.Int("n", 500, "number of candles")
	source := flag.String("source", "binance", "candle source: binance or clickhouse")
	showSegments := flag.Bool("segments", false, "print the slow segments")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	l, err := applogger.New(&applogger.Config{Level: cfg.Log.Level, Format: "console", Output: "stderr"})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, closeSrc, err := newSource(*source, cfg, l)
	if err != nil {
		log.Fatalf("source: %v", err)
	}
	defer closeSrc()

	list := splitSymbols(*symbols)
	tf := drepo.NormalizeTimeframe(*tfFlag)
	analyzer := usecase.NewAnalyzer(domsvc.AnalysisParams{
		FastPeriod:       cfg.Analysis.FastPeriod,
		SlowPeriod:       cfg.Analysis.SlowPeriod,
		MAType:           cfg.Analysis.MAType,
		FastThreshold:    cfg.Analysis.FastThreshold,
		SlowThreshold:    cfg.Analysis.SlowThreshold,
		SlopeRadius:      cfg.Analysis.SlopeRadius,
		OscillatorPeriod: cfg.Analysis.OscillatorPeriod,
	})

	results := make([]models.Analysis, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, symbol := range list {
		g.Go(func() error {
			candles, err := src.load(gctx, symbol, tf, *n)
			if err != nil {
				return fmt.Errorf("%s: %w", symbol, err)
			}
			res, err := analyzer.Analyze(symbol, string(tf), candles, domsvc.AnalysisParams{})
			if err != nil {
				return fmt.Errorf("%s: %w", symbol, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		l.Error("analysis failed", applogger.Error(err))
		os.Exit(1)
	}

	now := time.Now()
	for _, res := range results {
		// dedup like the service does, but keep the whole window
		tracker := convergence.NewTracker(cfg.Tracker.MinGap, tf.Duration()*time.Duration(res.Candles+1))
		tracker.Ingest(res.Signals, res.Timestamp)
		if *showSegments {
			renderSegments(res)
		}
		renderSignals(res, tracker.Signals(), now)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		// defaults only; symbols are taken from flags
		return config.Parse([]byte("ingest:\n  symbols: [BTCUSDT]\n"))
	}
	return config.LoadWithEnv(path)
}

func newSource(name string, cfg *config.Config, l *applogger.Logger) (candleSource, func(), error) {
	switch name {
	case "binance":
		h := binance.NewHistory(cfg.Binance.APIKey, cfg.Binance.APISecret, cfg.Binance.Testnet)
		return binanceSource{h: h}, func() {}, nil
	case "clickhouse":
		client, err := pkgch.NewClient(
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				l.Warn("clickhouse close", applogger.Error(err))
			}
		}
		return clickhouseSource{store: internalrepo.NewCHCandleStore(client, l)}, closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown source %q", name)
	}
}

func renderSegments(res models.Analysis) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("%s %s slow MA(%d) segments", res.Symbol, res.Interval, res.SlowPeriod))
	t.AppendHeader(table.Row{"Start", "End", "Length", "Slope", "Direction"})
	for _, s := range res.Slow {
		t.AppendRow(table.Row{
			s.StartTime.Format(time.DateTime),
			s.EndTime.Format(time.DateTime),
			s.Length,
			fmt.Sprintf("%.6f", s.Slope),
			s.Direction,
		})
	}
	t.Render()
}

func renderSignals(res models.Analysis, signals []models.ConvergenceSignal, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("%s %s signals (%d candles)", res.Symbol, res.Interval, res.Candles))
	t.AppendHeader(table.Row{"Time", "Kind", "Fast", "Slow change", "Price", "RSI", "Age"})
	for _, s := range signals {
		t.AppendRow(table.Row{
			s.Timestamp.Format(time.DateTime),
			s.Kind,
			s.FastDirection,
			s.SlowChange,
			optional(s.ReferencePrice, "%.2f"),
			optional(s.ReferenceOscillator, "%.1f"),
			now.Sub(s.Timestamp).Truncate(time.Second),
		})
	}
	if len(signals) == 0 {
		t.AppendRow(table.Row{"-", "none", "", "", "", "", ""})
	}
	t.Render()
}

func optional(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}

func splitSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
