// Command gpio-monitor samples GPIO lines, debounces them and reports
// confirmed state changes over HTTP/SSE and MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sweeney/gpio-monitor/internal/config"
	"github.com/sweeney/gpio-monitor/internal/gpio"
	"github.com/sweeney/gpio-monitor/internal/monitor"
	"github.com/sweeney/gpio-monitor/internal/mqtt"
	"github.com/sweeney/gpio-monitor/internal/sse"
	"github.com/sweeney/gpio-monitor/internal/status"
	"github.com/sweeney/gpio-monitor/internal/web"
)

// statusInterval is how often the status tracker is refreshed.
const statusInterval = time.Second

func main() {
	s := config.DefaultSettings()
	settingsPath := flag.String("settings", "", "Settings file (INI); explicit flags override it")
	flag.StringVar(&s.ConfigPath, "config", s.ConfigPath, "Monitoring configuration file")
	flag.StringVar(&s.HTTPAddr, "http", s.HTTPAddr, `HTTP address (empty uses the configured port, "off" disables)`)
	flag.DurationVar(&s.Poll, "poll", s.Poll, "GPIO polling interval")
	flag.DurationVar(&s.Watch, "watch", s.Watch, "Configuration file check interval")
	flag.DurationVar(&s.Settle, "settle", s.Settle, "Delay before reloading a changed configuration file")
	flag.DurationVar(&s.Heartbeat, "heartbeat", s.Heartbeat, "Heartbeat interval (0 to disable)")
	flag.StringVar(&s.Driver, "driver", s.Driver, "GPIO driver: gpiocdev or periph")
	flag.StringVar(&s.Chip, "chip", s.Chip, "GPIO chip (gpiocdev driver)")
	flag.DurationVar(&s.ReadTimeout, "read-timeout", s.ReadTimeout, "Maximum time for a single line read")
	flag.StringVar(&s.Broker, "broker", s.Broker, "MQTT broker address (empty to disable)")
	flag.StringVar(&s.Topic, "topic", s.Topic, "MQTT topic prefix")
	flag.StringVar(&s.ClientID, "client-id", s.ClientID, "MQTT client id")
	printState := flag.Bool("print-state", false, "Print the state of every monitored line and exit")

	flag.Parse()

	if *settingsPath != "" {
		file, err := config.LoadSettings(*settingsPath, config.DefaultSettings())
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		set := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
		s = mergeSettings(file, s, set)
	}

	if err := run(s, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// mergeSettings returns the file settings with every explicitly set flag
// taking precedence.
func mergeSettings(file, flags config.Settings, set map[string]bool) config.Settings {
	out := file
	if set["config"] {
		out.ConfigPath = flags.ConfigPath
	}
	if set["http"] {
		out.HTTPAddr = flags.HTTPAddr
	}
	if set["poll"] {
		out.Poll = flags.Poll
	}
	if set["watch"] {
		out.Watch = flags.Watch
	}
	if set["settle"] {
		out.Settle = flags.Settle
	}
	if set["heartbeat"] {
		out.Heartbeat = flags.Heartbeat
	}
	if set["driver"] {
		out.Driver = flags.Driver
	}
	if set["chip"] {
		out.Chip = flags.Chip
	}
	if set["read-timeout"] {
		out.ReadTimeout = flags.ReadTimeout
	}
	if set["broker"] {
		out.Broker = flags.Broker
	}
	if set["topic"] {
		out.Topic = flags.Topic
	}
	if set["client-id"] {
		out.ClientID = flags.ClientID
	}
	return out
}

func openReader(driver, chip string) (gpio.Reader, error) {
	switch driver {
	case "gpiocdev", "":
		return gpio.NewRealReader(chip)
	case "periph":
		return gpio.NewPeriphReader()
	default:
		return nil, fmt.Errorf("unknown gpio driver %q", driver)
	}
}

func run(s config.Settings, printState bool) error {
	if s.Poll <= 0 || s.Watch <= 0 || s.Settle <= 0 || s.ReadTimeout <= 0 {
		return errors.New("poll, watch, settle and read-timeout must be positive")
	}

	// Initialize GPIO
	rawReader, err := openReader(s.Driver, s.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer rawReader.Close()
	reader := gpio.WithTimeout(rawReader, s.ReadTimeout)

	store := config.NewFileStore(s.ConfigPath)

	// Print state mode
	if printState {
		return printStates(os.Stdout, store, reader)
	}

	inv, err := gpio.Discover(reader)
	if err != nil {
		log.Printf("gpio: %v, assuming lines %d-%d", err, gpio.DefaultLines[0], gpio.DefaultLines[len(gpio.DefaultLines)-1])
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      s.Poll.Milliseconds(),
		WatchMs:     s.Watch.Milliseconds(),
		HeartbeatMs: s.Heartbeat.Milliseconds(),
		Driver:      s.Driver,
		ConfigPath:  store.Path(),
		Broker:      s.Broker,
		HTTPAddr:    s.HTTPAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	broker := sse.NewBroker(sse.DefaultQueueSize)
	sinks := monitor.Sinks{tracker, broker}

	// Initialize MQTT
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if s.Broker != "" {
		p := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   s.Broker,
			ClientID: s.ClientID,
			Topic:    s.Topic,
		})
		defer p.Close()
		publisher, mqttStatus = p, p
		sinks = append(sinks, p)
	}

	mon := monitor.New(store, reader, inv, sinks, monitor.Options{Poll: s.Poll, Settle: s.Settle})
	if err := mon.Reload(); err != nil {
		log.Printf("config: %v, starting with no monitored lines", err)
	}

	// Start HTTP server
	addr := s.HTTPAddr
	if addr == "" {
		addr = fmt.Sprintf(":%d", mon.Config().Port)
	}
	if addr != "off" {
		srv := web.New(addr, mon, broker, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Printf("http server listening on %s", addr)
	}

	// Publish startup event with full status snapshot
	if publisher != nil {
		tracker.Update(mon.States(), mon.Config().Lines)
		snap := tracker.Snapshot()
		startupEvent := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := publisher.PublishSystem(startupEvent); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	log.Printf("started: poll=%v watch=%v driver=%s config=%s broker=%s heartbeat=%v",
		s.Poll, s.Watch, s.Driver, store.Path(), s.Broker, s.Heartbeat)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	pollTicker := time.NewTicker(s.Poll)
	defer pollTicker.Stop()
	watchTicker := time.NewTicker(s.Watch)
	defer watchTicker.Stop()
	statusTicker := time.NewTicker(statusInterval)
	defer statusTicker.Stop()

	var heartbeat <-chan time.Time
	if s.Heartbeat > 0 {
		hbTicker := time.NewTicker(s.Heartbeat)
		defer hbTicker.Stop()
		heartbeat = hbTicker.C
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		mon.Run(ctx, pollTicker.C)
	}()
	go func() {
		defer wg.Done()
		mon.Watch(ctx, watchTicker.C)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(mon, publisher, mqttStatus, tracker, time.Now, statusTicker.C, heartbeat, sigCh)
}

// lineSource is the part of the monitor the main loop reads.
type lineSource interface {
	States() map[int]int
	Config() config.Config
}

// runLoop keeps the status tracker fresh, publishes heartbeats and handles
// shutdown. Sampling and reloading run in their own goroutines.
func runLoop(lines lineSource, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, statusTick, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	refresh := func() {
		tracker.Update(lines.States(), lines.Config().Lines)
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if publisher == nil {
				return nil
			}
			refresh()
			snap := tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-statusTick:
			refresh()

		case <-heartbeat:
			refresh()
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			log.Printf("heartbeat: uptime=%v lines=%v events=%d",
				snap.Uptime().Truncate(time.Second), snap.Monitored, snap.EventCount)
			if publisher == nil {
				continue
			}
			hbEvent := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.Printf("heartbeat publish error: %v", err)
			}
		}
	}
}

// printStates reads every monitored line once and prints its reported value.
func printStates(w io.Writer, store monitor.Store, reader gpio.Reader) error {
	cfg, err := store.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Lines) == 0 {
		fmt.Fprintln(w, "no lines monitored")
		return nil
	}
	var errs []error
	for _, line := range cfg.Lines {
		o := cfg.OptionsFor(line)
		v, err := reader.Read(line, o.Bias)
		if err != nil {
			fmt.Fprintf(w, "GPIO %d: error: %v\n", line, err)
			errs = append(errs, fmt.Errorf("GPIO %d: %w", line, err))
			continue
		}
		if o.Inverted {
			v ^= 1
		}
		fmt.Fprintf(w, "GPIO %d: %s\n", line, stateString(v))
	}
	return errors.Join(errs...)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func stateString(v int) string {
	if v == 1 {
		return "HIGH"
	}
	return "LOW"
}
