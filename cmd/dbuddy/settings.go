package main

import (
	"time"

	"github.com/go-go-golems/dbuddy/pkg/bus"
	"github.com/go-go-golems/dbuddy/pkg/config"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// settings are the persistent flags. Flags that were set override the
// config file; the rest keep the file's values.
type settings struct {
	configPath string
	buses      []string

	maxMessages     int
	groupBy         []string
	filter          string
	mode            string
	refresh         time.Duration
	channelCapacity int
	logLevel        string
	logFile         string
	metricsAddr     string
}

func (s *settings) addFlags(fs *pflag.FlagSet) {
	d := config.Default()
	fs.StringVar(&s.configPath, "config", "", "Path to the config file (default: user config dir)")
	fs.StringSliceVar(&s.buses, "bus", []string{"session", "system"}, "Buses to monitor")
	fs.IntVar(&s.maxMessages, "max-messages", d.MaxMessages, "Messages retained per bus")
	fs.StringSliceVar(&s.groupBy, "group-by", d.GroupBy, "Group keys: sender, member, path, serial or none")
	fs.StringVar(&s.filter, "filter", d.Filter, "Initial filter, e.g. 'sender=:1.5 member=Get'")
	fs.StringVar(&s.mode, "mode", d.Mode, "Bus shown: session, system or both")
	fs.DurationVar(&s.refresh, "refresh", d.Refresh, "Screen refresh interval")
	fs.IntVar(&s.channelCapacity, "channel-capacity", d.ChannelCapacity, "Ingestion buffer per bus")
	fs.StringVar(&s.logLevel, "log-level", d.LogLevel, "Log level: trace, debug, info, warn, error")
	fs.StringVar(&s.logFile, "log-file", d.LogFile, "Log file (rotated)")
	fs.StringVar(&s.metricsAddr, "metrics-addr", d.MetricsAddr, "Serve prometheus metrics on this address")
}

// load reads the config file and layers changed flags over it. The returned
// path is the file to watch; it is empty when no config location exists.
func (s *settings) load(fs *pflag.FlagSet) (*config.Config, string, error) {
	path := s.configPath
	var (
		cfg *config.Config
		err error
	)
	switch {
	case path != "":
		cfg, err = config.Load(path)
	default:
		if p, perr := config.DefaultPath(); perr == nil {
			path = p
			cfg, err = config.LoadOrDefault(path)
		} else {
			cfg = config.Default()
		}
	}
	if err != nil {
		return nil, "", err
	}

	if fs.Changed("max-messages") {
		cfg.MaxMessages = s.maxMessages
	}
	if fs.Changed("group-by") {
		cfg.GroupBy = s.groupBy
	}
	if fs.Changed("filter") {
		cfg.Filter = s.filter
	}
	if fs.Changed("mode") {
		cfg.Mode = s.mode
	}
	if fs.Changed("refresh") {
		cfg.Refresh = s.refresh
	}
	if fs.Changed("channel-capacity") {
		cfg.ChannelCapacity = s.channelCapacity
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = s.logLevel
	}
	if fs.Changed("log-file") {
		cfg.LogFile = s.logFile
	}
	if fs.Changed("metrics-addr") {
		cfg.MetricsAddr = s.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func (s *settings) sources() ([]bus.Source, error) {
	var out []bus.Source
	seen := map[bus.Source]bool{}
	for _, name := range s.buses {
		src, err := bus.ParseSource(name)
		if err != nil {
			return nil, err
		}
		if !seen[src] {
			seen[src] = true
			out = append(out, src)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no bus selected")
	}
	return out, nil
}
