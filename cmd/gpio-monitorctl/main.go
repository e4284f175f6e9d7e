// Command gpio-monitorctl edits the gpio-monitor configuration file.
// A running daemon picks up changes through its file watcher.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sweeney/gpio-monitor/internal/config"
	"github.com/sweeney/gpio-monitor/internal/gpio"
)

const usage = `GPIO Monitor Control

Usage: gpio-monitorctl [-config path] [-chip name] <command> [args]

Pin Management:
  add-pin <pin>                          Add a GPIO pin to monitor
  remove-pin <pin>                       Remove a GPIO pin from monitoring
  list-pins                              List all monitored and available pins
  clear-pins                             Remove all pins from monitoring

Pin Configuration:
  set-pull <pin> <up|down|none>          Set pull resistor
  set-debounce <pin> LOW <1-10> HIGH <1-10>
                                         Set asymmetric debouncing thresholds
  remove-debounce <pin>                  Remove debouncing
  set-inverted <pin>                     Set inverted logic (HIGH reads as LOW)
  remove-inverted <pin>                  Remove inverted logic

Daemon:
  status                                 Show the current configuration
  set-port <port>                        Set the HTTP port (requires restart)
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, discover))
}

// discover returns the line inventory of the chip, or the default lines
// when the chip cannot be opened.
func discover(chip string) gpio.Inventory {
	r, err := gpio.NewRealReader(chip)
	if err != nil {
		return gpio.Inventory{Available: gpio.DefaultLines, Reserved: gpio.ReservedFunctions}
	}
	defer r.Close()
	inv, _ := gpio.Discover(r)
	return inv
}

// cli carries the state of one invocation.
type cli struct {
	store *config.FileStore
	inv   gpio.Inventory
	in    *bufio.Reader
	out   io.Writer
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer, inventory func(chip string) gpio.Inventory) int {
	fs := flag.NewFlagSet("gpio-monitorctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("config", config.DefaultPath, "Monitoring configuration file")
	chip := fs.String("chip", gpio.DefaultChip, "GPIO chip used to discover lines")
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 || rest[0] == "help" || rest[0] == "-h" {
		fmt.Fprint(stdout, usage)
		return 0
	}

	c := &cli{
		store: config.NewFileStore(*path),
		in:    bufio.NewReader(stdin),
		out:   stdout,
	}
	cmd, cmdArgs := rest[0], rest[1:]
	if cmd == "add-pin" || cmd == "list-pins" {
		c.inv = inventory(*chip)
	}

	if err := c.dispatch(cmd, cmdArgs); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		var u usageError
		if errors.As(err, &u) {
			return 2
		}
		return 1
	}
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

var errAborted = errors.New("aborted")

func (c *cli) dispatch(cmd string, args []string) error {
	switch cmd {
	case "add-pin":
		return c.withPin(args, c.addPin)
	case "remove-pin":
		return c.withPin(args, c.removePin)
	case "list-pins":
		return c.listPins()
	case "clear-pins":
		return c.clearPins()
	case "set-pull":
		if len(args) != 2 {
			return usageError("usage: set-pull <pin> <up|down|none>")
		}
		return c.withPin(args[:1], func(pin int) error { return c.setPull(pin, args[1]) })
	case "set-debounce":
		return c.setDebounce(args)
	case "remove-debounce":
		return c.withPin(args, c.removeDebounce)
	case "set-inverted":
		return c.withPin(args, c.setInverted)
	case "remove-inverted":
		return c.withPin(args, c.removeInverted)
	case "set-port":
		if len(args) != 1 {
			return usageError("usage: set-port <port>")
		}
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.New("invalid port number")
		}
		return c.setPort(port)
	case "status":
		return c.status()
	default:
		return usageError(fmt.Sprintf("unknown command %q (try help)", cmd))
	}
}

func (c *cli) withPin(args []string, fn func(pin int) error) error {
	if len(args) != 1 {
		return usageError("expected a pin number")
	}
	pin, err := strconv.Atoi(args[0])
	if err != nil || pin < 0 {
		return errors.New("invalid pin number")
	}
	return fn(pin)
}

// edit loads the configuration, applies fn and saves the result.
func (c *cli) edit(fn func(cfg *config.Config) error) (config.Config, error) {
	cfg, err := c.store.Load()
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := fn(&cfg); err != nil {
		return cfg, err
	}
	if err := c.store.Save(cfg); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}
	return cfg, nil
}

func (c *cli) confirm(prompt string) bool {
	fmt.Fprintf(c.out, "%s (y/N): ", prompt)
	answer, _ := c.in.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func (c *cli) addPin(pin int) error {
	if !c.inv.IsAvailable(pin) {
		return fmt.Errorf("GPIO %d is not available on this device (available: %s)", pin, formatLines(c.inv.Available))
	}
	if fn, ok := c.inv.Reserved[pin]; ok {
		fmt.Fprintf(c.out, "Warning: GPIO %d has a special function: %s\n", pin, fn)
		fmt.Fprintln(c.out, "This pin may not work correctly if the function is in use")
		if !c.confirm("Continue anyway?") {
			return errAborted
		}
	}
	cfg, err := c.edit(func(cfg *config.Config) error { return cfg.AddLine(pin) })
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Added GPIO %d to monitoring\n", pin)
	fmt.Fprintf(c.out, "Currently monitoring: %s\n", formatLines(cfg.Lines))
	return nil
}

func (c *cli) removePin(pin int) error {
	cfg, err := c.edit(func(cfg *config.Config) error { return cfg.RemoveLine(pin) })
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Removed GPIO %d from monitoring\n", pin)
	fmt.Fprintf(c.out, "Currently monitoring: %s\n", formatLines(cfg.Lines))
	return nil
}

func (c *cli) clearPins() error {
	if _, err := c.edit(func(cfg *config.Config) error {
		cfg.ClearLines()
		return nil
	}); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Cleared all monitored pins")
	return nil
}

func (c *cli) setPull(pin int, mode string) error {
	b, err := gpio.ParseBias(mode)
	if err != nil {
		return err
	}
	if _, err := c.edit(func(cfg *config.Config) error { return cfg.SetBias(pin, b) }); err != nil {
		return err
	}
	if b == gpio.BiasNone {
		fmt.Fprintf(c.out, "Removed pull resistor configuration for GPIO %d\n", pin)
		return nil
	}
	fmt.Fprintf(c.out, "Set GPIO %d to %s\n", pin, b)
	return nil
}

// setDebounce parses "<pin> LOW <n> HIGH <n>"; the LOW and HIGH pairs may
// come in either order.
func (c *cli) setDebounce(args []string) error {
	const form = "usage: set-debounce <pin> LOW <1-10> HIGH <1-10>"
	if len(args) != 5 {
		return usageError(form)
	}
	pin, err := strconv.Atoi(args[0])
	if err != nil || pin < 0 {
		return errors.New("invalid pin number")
	}
	values := map[string]int{}
	for i := 1; i < len(args); i += 2 {
		key := strings.ToUpper(args[i])
		if key != "LOW" && key != "HIGH" {
			return usageError(form)
		}
		v, err := strconv.Atoi(args[i+1])
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", args[i+1], config.ErrInvalidThreshold)
		}
		values[key] = v
	}
	low, okLow := values["LOW"]
	high, okHigh := values["HIGH"]
	if !okLow || !okHigh {
		return usageError("must specify both LOW and HIGH thresholds")
	}
	if _, err := c.edit(func(cfg *config.Config) error { return cfg.SetDebounce(pin, low, high) }); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Set GPIO %d debouncing:\n", pin)
	fmt.Fprintf(c.out, "  HIGH->LOW transition: %d/10 readings required\n", low)
	fmt.Fprintf(c.out, "  LOW->HIGH transition: %d/10 readings required\n", high)
	return nil
}

func (c *cli) removeDebounce(pin int) error {
	var had bool
	if _, err := c.edit(func(cfg *config.Config) error {
		var err error
		had, err = cfg.ClearDebounce(pin)
		return err
	}); err != nil {
		return err
	}
	if !had {
		fmt.Fprintf(c.out, "GPIO %d does not have debouncing configured\n", pin)
		return nil
	}
	fmt.Fprintf(c.out, "Removed debouncing from GPIO %d\n", pin)
	return nil
}

func (c *cli) setInverted(pin int) error {
	if _, err := c.edit(func(cfg *config.Config) error { return cfg.SetInverted(pin) }); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Set GPIO %d to inverted logic\n", pin)
	return nil
}

func (c *cli) removeInverted(pin int) error {
	var had bool
	if _, err := c.edit(func(cfg *config.Config) error {
		var err error
		had, err = cfg.ClearInverted(pin)
		return err
	}); err != nil {
		return err
	}
	if !had {
		fmt.Fprintf(c.out, "GPIO %d does not have inverted logic configured\n", pin)
		return nil
	}
	fmt.Fprintf(c.out, "Removed inverted logic from GPIO %d\n", pin)
	return nil
}

func (c *cli) setPort(port int) error {
	cur, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cur.Port == port {
		fmt.Fprintf(c.out, "Port is already set to %d\n", port)
		return nil
	}
	if _, err := c.edit(func(cfg *config.Config) error { return cfg.SetPort(port) }); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Port set to %d\n", port)
	fmt.Fprintln(c.out, "Port changes require a daemon restart")
	return nil
}

func (c *cli) status() error {
	cfg, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(c.out, "Config file: %s\n", c.store.Path())
	fmt.Fprintf(c.out, "Current port: %d\n", cfg.Port)
	fmt.Fprintf(c.out, "Monitored pins: %s\n", formatLines(cfg.Lines))
	fmt.Fprintf(c.out, "Web interface: http://localhost:%d\n", cfg.Port)
	return nil
}

func (c *cli) listPins() error {
	cfg, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintln(c.out, "GPIO Pin Status")
	fmt.Fprintln(c.out, strings.Repeat("-", 60))
	fmt.Fprintf(c.out, "Monitored pins: %s\n", formatLines(cfg.Lines))
	fmt.Fprintf(c.out, "Available pins: %s\n", formatLines(c.inv.Available))

	var configured []int
	for _, line := range cfg.Lines {
		if !cfg.OptionsFor(line).IsZero() {
			configured = append(configured, line)
		}
	}
	if len(configured) > 0 {
		fmt.Fprintln(c.out, "\nPin Configuration:")
		for _, line := range configured {
			fmt.Fprintf(c.out, "  GPIO %2d: %s\n", line, describeOptions(cfg.OptionsFor(line)))
		}
	}

	if len(c.inv.Reserved) > 0 {
		fmt.Fprintln(c.out, "\nPins with special functions:")
		reserved := make([]int, 0, len(c.inv.Reserved))
		for line := range c.inv.Reserved {
			reserved = append(reserved, line)
		}
		sort.Ints(reserved)
		for _, line := range reserved {
			mark := ""
			if cfg.Monitors(line) {
				mark = " (MONITORED)"
			}
			fmt.Fprintf(c.out, "  GPIO %2d: %s%s\n", line, c.inv.Reserved[line], mark)
		}
	}

	var general, idle []int
	for _, line := range c.inv.Available {
		if _, ok := c.inv.Reserved[line]; ok {
			continue
		}
		general = append(general, line)
		if !cfg.Monitors(line) {
			idle = append(idle, line)
		}
	}
	fmt.Fprintf(c.out, "\nGeneral purpose pins: %s\n", formatLines(general))
	if len(idle) > 0 {
		fmt.Fprintf(c.out, "Not monitored: %s\n", formatLines(idle))
	}
	return nil
}

func describeOptions(o config.LineOptions) string {
	var parts []string
	if o.Bias != gpio.BiasNone {
		parts = append(parts, o.Bias.String())
	}
	if o.Inverted {
		parts = append(parts, "inverted")
	}
	if o.Thresholds().Enabled() {
		parts = append(parts, fmt.Sprintf("debounce LOW=%d/10 HIGH=%d/10", o.DebounceLow, o.DebounceHigh))
	}
	return strings.Join(parts, ", ")
}

func formatLines(lines []int) string {
	if len(lines) == 0 {
		return "None"
	}
	s := make([]string, len(lines))
	for i, l := range lines {
		s[i] = strconv.Itoa(l)
	}
	return strings.Join(s, ", ")
}
