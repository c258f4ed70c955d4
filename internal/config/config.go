package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"wf-backtest/internal/backtest"
	"wf-backtest/internal/features"
	"wf-backtest/internal/label"
	"wf-backtest/internal/logger"
	"wf-backtest/internal/model"
	"wf-backtest/internal/pipeline"
	"wf-backtest/internal/report"
	"wf-backtest/internal/split"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	Data    DataConfig    `yaml:"data"`
	Split   SplitConfig   `yaml:"split"`
	Feature FeatureConfig `yaml:"feature"`
	Label   LabelConfig   `yaml:"label"`
	Train   TrainConfig   `yaml:"train"`
	Trade   TradeConfig   `yaml:"trade"`
	Run     RunConfig     `yaml:"run"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

type DataConfig struct {
	Path   string `yaml:"path"`
	Symbol string `yaml:"symbol"`
	// Timezone is the calendar used for window boundaries (IANA name). Empty means UTC.
	Timezone string `yaml:"tz"`
}

type SplitConfig struct {
	TrainMonths int `yaml:"train_months"`
	ValidMonths int `yaml:"valid_months"`
	TestMonths  int `yaml:"test_months"`
	StepMonths  int `yaml:"step_months"`
}

type FeatureConfig struct {
	features.Config `yaml:",inline"`
	ATRPeriod       int `yaml:"atr_period"`
}

// LabelConfig carries the barrier multipliers for compatibility with existing
// config files; the endpoint labeler only reads MaxHolding and MinMoveBps.
type LabelConfig struct {
	ATRMultTP  float64 `yaml:"atr_mult_tp"`
	ATRMultSL  float64 `yaml:"atr_mult_sl"`
	MaxHolding int     `yaml:"max_holding"`
	MinMoveBps int     `yaml:"min_move_bps"`
}

type TrainConfig struct {
	Trainer string `yaml:"trainer"`
	SeqLen  int    `yaml:"seq_len"`
}

type TradeConfig struct {
	ProbaThreshold float64 `yaml:"proba_threshold"`
	FeeBps         float64 `yaml:"fee_bps"`
	SlippageBps    float64 `yaml:"slippage_bps"`
	ATRMultTP      float64 `yaml:"atr_mult_tp"`
	ATRMultSL      float64 `yaml:"atr_mult_sl"`
	MaxHolding     int     `yaml:"max_holding"`
}

type RunConfig struct {
	Workers int    `yaml:"workers"`
	OutDir  string `yaml:"out_dir"`
}

// StorageConfig enables the InfluxDB sink when URL is set.
type StorageConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default mirrors the reference 5-minute BTC setup.
func Default() *Config {
	return &Config{
		Data: DataConfig{Symbol: "BTCUSDT"},
		Split: SplitConfig{
			TrainMonths: 6,
			ValidMonths: 1,
			TestMonths:  1,
			StepMonths:  1,
		},
		Feature: FeatureConfig{
			Config: features.Config{
				ReturnLags: []int{1, 3, 6, 12},
				EMAPeriods: []int{9, 21, 50},
				RSIPeriod:  14,
			},
			ATRPeriod: 14,
		},
		Label: LabelConfig{ATRMultTP: 2, ATRMultSL: 1, MaxHolding: 24, MinMoveBps: 5},
		Train: TrainConfig{Trainer: "centroid", SeqLen: 64},
		Trade: TradeConfig{
			ProbaThreshold: 0.55,
			FeeBps:         4,
			SlippageBps:    1,
			ATRMultTP:      2,
			ATRMultSL:      1,
			MaxHolding:     24,
		},
		Run: RunConfig{OutDir: "outputs"},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over Default and validates the result.
func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads config over defaults, but does not validate it.
// Useful for debugging/printing partial configs.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes YAML over Default without validating.
func Parse(raw []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("data.tz invalid: %w", err)
	}
	if c.Feature.ATRPeriod <= 0 {
		return errors.New("feature.atr_period must be > 0")
	}
	if !model.IsFinite(c.Label.ATRMultTP) || c.Label.ATRMultTP < 0 || !model.IsFinite(c.Label.ATRMultSL) || c.Label.ATRMultSL < 0 {
		return errors.New("label atr multipliers must be >= 0")
	}
	if c.Train.Trainer == "" {
		return errors.New("train.trainer is required")
	}
	if c.Run.Workers < 0 {
		return errors.New("run.workers must be >= 0")
	}
	if c.Storage.URL != "" && (c.Storage.Org == "" || c.Storage.Bucket == "") {
		return errors.New("storage.org and storage.bucket are required when storage.url is set")
	}
	if _, err := logger.New(logger.Options{Level: c.Log.Level}); err != nil {
		return fmt.Errorf("log.level invalid: %w", err)
	}
	p, err := c.Pipeline()
	if err != nil {
		return err
	}
	return p.Validate()
}

// Location resolves data.tz.
func (c *Config) Location() (*time.Location, error) {
	if c.Data.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Data.Timezone)
}

func (c *Config) Splitter() (split.Splitter, error) {
	loc, err := c.Location()
	if err != nil {
		return split.Splitter{}, err
	}
	return split.Splitter{
		TrainMonths: c.Split.TrainMonths,
		ValidMonths: c.Split.ValidMonths,
		TestMonths:  c.Split.TestMonths,
		StepMonths:  c.Split.StepMonths,
		Location:    loc,
	}, nil
}

func (l LabelConfig) Params() label.Params {
	return label.Params{MaxHolding: l.MaxHolding, MinMoveBps: l.MinMoveBps}
}

func (t TradeConfig) Params() backtest.Params {
	return backtest.Params{
		Threshold:     t.ProbaThreshold,
		FeeBps:        t.FeeBps,
		SlippageBps:   t.SlippageBps,
		ATRTakeProfit: t.ATRMultTP,
		ATRStopLoss:   t.ATRMultSL,
		MaxHolding:    t.MaxHolding,
	}
}

func (s StorageConfig) Influx() report.InfluxConfig {
	return report.InfluxConfig{URL: s.URL, Token: s.Token, Org: s.Org, Bucket: s.Bucket}
}

func (l LogConfig) Options() logger.Options {
	return logger.Options{Level: l.Level, JSON: l.JSON}
}

// Pipeline assembles the runner configuration.
func (c *Config) Pipeline() (pipeline.Config, error) {
	sp, err := c.Splitter()
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Features:  c.Feature.Config,
		Splitter:  sp,
		Label:     c.Label.Params(),
		Trade:     c.Trade.Params(),
		SeqLen:    c.Train.SeqLen,
		ATRPeriod: c.Feature.ATRPeriod,
		Workers:   c.Run.Workers,
	}, nil
}

// Overlay returns a copy of c with the YAML document raw applied on top. The copy
// is not validated.
func (c *Config) Overlay(raw []byte) (*Config, error) {
	out := *c
	out.Feature.ReturnLags = append([]int(nil), c.Feature.ReturnLags...)
	out.Feature.EMAPeriods = append([]int(nil), c.Feature.EMAPeriods...)
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
