// Package seed fills a historian with synthetic points and history for trial
// runs.
//
// Analog points carry a daily sine wave with noise. Every DigitalEvery-th
// point is a digital state point switching between "Open" and "Closed".
// Every BadEvery-th analog point ends its history with "Bad Input" samples,
// so last-valid searches have something to find. Analog points also get a
// daily "mode" attribute stream when the store accepts attribute writes.
package seed

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/okian/histsync/internal/domain/historian"
	"github.com/okian/histsync/internal/domain/model"
	"github.com/okian/histsync/pkg/logger"
)

// Sample values with special meaning.
const (
	BadInput   = "Bad Input"
	StateOpen  = "Open"
	StateClose = "Closed"

	ModeAttribute = "mode"
	ModeAuto      = "AUTO"
	ModeManual    = "MANUAL"
)

// Generation constants.
const (
	defaultPoints    = 10
	defaultDays      = 7
	defaultInterval  = 15 * time.Minute
	defaultBatchSize = 10_000
	defaultPrefix    = "SIM.TAG"

	DigitalEvery = 7
	BadEvery     = 5
	ManualEvery  = 4 // every 4th day of the mode stream is manual

	amplitude  = 10.0
	noiseScale = 0.5
	badTail    = 0.1 // share of samples replaced by BadInput
)

// Config describes what to generate.
type Config struct {
	Prefix     string         // point name prefix, names are Prefix0001...
	Points     int            // number of points
	Days       int            // history length ending at End
	Interval   time.Duration  // sample spacing
	End        time.Time      // newest sample; zero means now, truncated to Interval
	Attributes map[string]any // attributes of created points
	Seed       uint64         // noise seed; equal seeds give equal history
	BatchSize  int            // values per PutValues call
}

func (c *Config) defaults(now time.Time) {
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	if c.Points == 0 {
		c.Points = defaultPoints
	}
	if c.Days == 0 {
		c.Days = defaultDays
	}
	if c.Interval == 0 {
		c.Interval = defaultInterval
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.End.IsZero() {
		c.End = now.UTC().Truncate(c.Interval)
	}
}

func (c *Config) validate() error {
	switch {
	case c.Points < 0:
		return fmt.Errorf("%w: points %d", ErrInvalidConfig, c.Points)
	case c.Days < 0:
		return fmt.Errorf("%w: days %d", ErrInvalidConfig, c.Days)
	case c.Interval < 0:
		return fmt.Errorf("%w: interval %s", ErrInvalidConfig, c.Interval)
	case c.BatchSize < 0:
		return fmt.Errorf("%w: batch size %d", ErrInvalidConfig, c.BatchSize)
	}
	return nil
}

// Stats summarizes a seeding run.
type Stats struct {
	Points     int
	Values     int
	Rejected   int
	ModeValues int
	Duration   time.Duration
}

// PointName returns the name of the i-th generated point, counting from 1.
func PointName(prefix string, i int) string {
	return fmt.Sprintf("%s%04d", prefix, i)
}

// Run creates the points and writes their history into store.
func Run(ctx context.Context, store historian.Store, cfg Config, log logger.Logger) (Stats, error) {
	if log == nil {
		log = logger.Nop()
	}
	start := time.Now()
	cfg.defaults(start)
	if err := cfg.validate(); err != nil {
		return Stats{}, err
	}

	names := make([]string, cfg.Points)
	for i := range names {
		names[i] = PointName(cfg.Prefix, i+1)
	}
	for lo := 0; lo < len(names); lo += cfg.BatchSize {
		hi := min(lo+cfg.BatchSize, len(names))
		if err := store.CreatePoints(ctx, names[lo:hi], cfg.Attributes); err != nil {
			return Stats{}, fmt.Errorf("create points: %w", err)
		}
	}
	log.Info(ctx, "points created", logger.Int("points", len(names)), logger.String("prefix", cfg.Prefix))

	editor, _ := store.(historian.ValueEditor)
	mode := ModeAttribute

	var st Stats
	st.Points = len(names)
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		vals := History(cfg, i+1)
		for lo := 0; lo < len(vals); lo += cfg.BatchSize {
			hi := min(lo+cfg.BatchSize, len(vals))
			failed, err := store.PutValues(ctx, name, vals[lo:hi], model.Replace)
			if err != nil {
				return st, fmt.Errorf("write history of %s: %w", name, err)
			}
			st.Values += hi - lo - failed
			st.Rejected += failed
		}
		if editor != nil {
			for _, v := range ModeHistory(cfg, i+1) {
				if err := editor.InsertValue(ctx, name, &mode, v); err != nil {
					return st, fmt.Errorf("write %s stream of %s: %w", mode, name, err)
				}
				st.ModeValues++
			}
		}
		log.Debug(ctx, "history written", logger.String("point", name), logger.Int("values", len(vals)))
	}

	st.Duration = time.Since(start)
	log.Info(ctx, "seeding finished",
		logger.Int("points", st.Points),
		logger.Int("values", st.Values),
		logger.Int("rejected", st.Rejected),
		logger.Int("mode_values", st.ModeValues),
		logger.Duration("duration", st.Duration))
	return st, nil
}

// History returns the samples of the i-th point (from 1), oldest first.
// cfg must already carry its defaults.
func History(cfg Config, i int) []model.Value {
	if cfg.Interval <= 0 {
		return nil
	}
	n := int(time.Duration(cfg.Days)*24*time.Hour/cfg.Interval) + 1
	first := cfg.End.Add(-time.Duration(n-1) * cfg.Interval)
	rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i))) //nolint:gosec // synthetic data

	digital := i%DigitalEvery == 0
	bad := !digital && i%BadEvery == 0
	badFrom := n - int(math.Ceil(float64(n)*badTail))
	phase := 2 * math.Pi * float64(i) / float64(max(cfg.Points, 1))

	out := make([]model.Value, n)
	for k := range n {
		ts := first.Add(time.Duration(k) * cfg.Interval)
		v := model.Value{Timestamp: ts}
		switch {
		case digital:
			v.Value = StateClose
			if rng.IntN(2) == 0 {
				v.Value = StateOpen
			}
		case bad && k >= badFrom:
			v.Value = BadInput
		default:
			day := float64(ts.Unix()%86400) / 86400
			v.Value = amplitude*math.Sin(2*math.Pi*day+phase) + noiseScale*rng.NormFloat64()
			v.UOM = "degC"
		}
		out[k] = v
	}
	return out
}

// ModeHistory returns the daily mode samples of the i-th point (from 1),
// oldest first, ending at cfg.End. Digital points have none.
func ModeHistory(cfg Config, i int) []model.Value {
	if i%DigitalEvery == 0 {
		return nil
	}
	first := cfg.End.AddDate(0, 0, -cfg.Days)
	out := make([]model.Value, cfg.Days+1)
	for k := range out {
		v := model.Value{Timestamp: first.AddDate(0, 0, k), Value: ModeAuto}
		if k%ManualEvery == ManualEvery-1 {
			v.Value = ModeManual
		}
		out[k] = v
	}
	return out
}
