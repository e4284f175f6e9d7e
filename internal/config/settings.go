package config

import (
	"fmt"
	"time"

	ini "github.com/aamcrae/config"
)

// Settings are the daemon's runtime parameters. They come from flags and
// may be preloaded from a settings file.
type Settings struct {
	ConfigPath  string
	HTTPAddr    string
	Poll        time.Duration
	Watch       time.Duration
	Settle      time.Duration
	Heartbeat   time.Duration
	Driver      string
	Chip        string
	ReadTimeout time.Duration
	Broker      string
	Topic       string
	ClientID    string
}

// DefaultSettings returns the built-in daemon parameters.
func DefaultSettings() Settings {
	return Settings{
		ConfigPath:  DefaultPath,
		HTTPAddr:    "",
		Poll:        100 * time.Millisecond,
		Watch:       time.Second,
		Settle:      100 * time.Millisecond,
		Heartbeat:   15 * time.Minute,
		Driver:      "gpiocdev",
		Chip:        "gpiochip0",
		ReadTimeout: 150 * time.Millisecond,
		Topic:       "gpio-monitor",
		ClientID:    "gpio-monitor",
	}
}

// LoadSettings reads a settings file on top of base. Missing sections and
// keys leave the base value in place.
// Sample file:
//
//	[monitor]
//	config=/etc/gpio-monitor/config.json
//	poll=100ms
//	watch=1s
//	settle=100ms
//	heartbeat=15m
//	[gpio]
//	driver=gpiocdev
//	chip=gpiochip0
//	read-timeout=150ms
//	[http]
//	addr=:8787
//	[mqtt]
//	broker=tcp://localhost:1883
//	topic=gpio-monitor
//	client-id=gpio-monitor
func LoadSettings(path string, base Settings) (Settings, error) {
	conf, err := ini.ParseFile(path)
	if err != nil {
		return base, fmt.Errorf("settings %s: %w", path, err)
	}
	s := base

	type field struct {
		section, key string
		str          *string
		dur          *time.Duration
	}
	fields := []field{
		{section: "monitor", key: "config", str: &s.ConfigPath},
		{section: "monitor", key: "poll", dur: &s.Poll},
		{section: "monitor", key: "watch", dur: &s.Watch},
		{section: "monitor", key: "settle", dur: &s.Settle},
		{section: "monitor", key: "heartbeat", dur: &s.Heartbeat},
		{section: "gpio", key: "driver", str: &s.Driver},
		{section: "gpio", key: "chip", str: &s.Chip},
		{section: "gpio", key: "read-timeout", dur: &s.ReadTimeout},
		{section: "http", key: "addr", str: &s.HTTPAddr},
		{section: "mqtt", key: "broker", str: &s.Broker},
		{section: "mqtt", key: "topic", str: &s.Topic},
		{section: "mqtt", key: "client-id", str: &s.ClientID},
	}
	for _, f := range fields {
		sec := conf.GetSection(f.section)
		if sec == nil {
			continue
		}
		v, err := sec.GetArg(f.key)
		if err != nil || v == "" {
			continue
		}
		if f.str != nil {
			*f.str = v
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return base, fmt.Errorf("settings %s: [%s] %s: %w", path, f.section, f.key, err)
		}
		if d <= 0 {
			return base, fmt.Errorf("settings %s: [%s] %s: must be positive", path, f.section, f.key)
		}
		*f.dur = d
	}
	return s, nil
}
