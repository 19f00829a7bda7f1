package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/caarlos0/env/v6"
	"golang.org/x/sync/errgroup"

	"github.com/cjeanneret/lensvcm/internal/config"
	"github.com/cjeanneret/lensvcm/internal/debug"
	"github.com/cjeanneret/lensvcm/internal/hw/gpio"
	"github.com/cjeanneret/lensvcm/internal/hw/regbus"
	"github.com/cjeanneret/lensvcm/internal/hw/vcm"
	"github.com/cjeanneret/lensvcm/internal/logic/dispatch"
	"github.com/cjeanneret/lensvcm/internal/logic/registry"
	"github.com/cjeanneret/lensvcm/internal/override"
	"github.com/cjeanneret/lensvcm/internal/shell"
	"github.com/cjeanneret/lensvcm/internal/web"
)

// EnvConfig holds environment overrides. They win over the config file;
// command-line flags win over them.
type EnvConfig struct {
	ConfigPath string `env:"VCM_CONFIG"`
	DebugLevel int    `env:"VCM_DEBUG_LEVEL" envDefault:"-1"` // -1 = use config
	Mock       bool   `env:"VCM_MOCK"`                        // force mock GPIO and bus
}

// options are the resolved command-line settings.
type options struct {
	cfgPath  string
	webPort  int
	shell    bool
	position int
	softland bool
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	shellMode := flag.Bool("shell", false, "start the interactive bench shell")
	position := flag.Int("position", -1, "one-shot mode: move every actuator to this position (0-1023, -1 = stay)")
	softland := flag.Bool("softland", true, "soft-land actuators on exit when their policy allows it")
	flag.Parse()

	var envCfg EnvConfig
	if err := env.Parse(&envCfg); err != nil {
		log.Fatalf("parse environment failed: %v", err)
	}

	opts := options{
		cfgPath:  resolveConfigPath(*cfgPath, flagWasSet("config"), envCfg.ConfigPath),
		webPort:  webPort.port(),
		shell:    *shellMode,
		position: *position,
		softland: *softland,
	}
	if err := validatePosition(opts.position); err != nil {
		log.Fatalf("invalid -position: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts, envCfg); err != nil {
		log.Fatalf("vcmctl: %v", err)
	}
}

func run(ctx context.Context, opts options, envCfg EnvConfig) error {
	// Load configuration
	cfg, err := config.Load(opts.cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyEnv(cfg, envCfg)
	if !opts.softland {
		disableExitLanding(cfg)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", opts.cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Value("Mock bus", cfg.Defaults.MockBus)

	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return fmt.Errorf("init GPIO: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(2, "Loading debug overrides")
	ov, err := override.NewStore(overrideSettings(cfg.Debug))
	if err != nil {
		return fmt.Errorf("debug overrides: %w", err)
	}

	debug.Step(3, "Opening actuators")
	reg, err := registry.New(cfg.Actuators, registry.Options{
		OpenBus:   newBusOpener(cfg.Defaults.MockBus),
		GPIO:      gpioDriver,
		Overrides: ov,
	})
	if err != nil {
		return err
	}
	for _, a := range cfg.Actuators {
		debug.PrintStruct("Actuator "+a.Name, a)
	}
	defer func() {
		if err := reg.Shutdown(); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	debug.Step(4, "Initializing actuators")
	initErr := reg.InitAll(ctx)

	if opts.webPort == 0 && !opts.shell {
		if initErr != nil {
			return fmt.Errorf("init: %w", initErr)
		}
		return oneShot(os.Stdout, reg, opts.position)
	}
	if initErr != nil {
		// Surfaces stay up so the operator can retry per actuator.
		log.Printf("init: %v", initErr)
	}

	g, ctx := errgroup.WithContext(ctx)
	if opts.webPort > 0 {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		srv := web.NewServer(fmt.Sprintf(":%d", opts.webPort), broadcaster, reg, ov)
		g.Go(func() error { return srv.Run(ctx) })
	}
	if opts.shell {
		g.Go(func() error {
			shell.New(reg, ov).Run(ctx)
			return errShellExit
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, errShellExit) {
		return err
	}
	return nil
}

// errShellExit stops the other surfaces when the operator leaves the shell.
var errShellExit = errors.New("shell exited")

// oneShot moves every actuator to position (when >= 0) and reports status.
func oneShot(w io.Writer, reg *registry.Registry, position int) error {
	for _, e := range reg.Entries() {
		if position >= 0 {
			if err := e.Move(int32(position)); err != nil {
				return err
			}
		}
		c := dispatch.Control{ID: dispatch.CIDGetStatus}
		if err := e.Ioctl(dispatch.CmdGetCtrl, &c); err != nil {
			return err
		}
		s := e.Snapshot()
		fmt.Fprintf(w, "%s sensor=%d place=%d position=%d busy=%d\n", s.Name, s.SensorID, s.Place, s.Position, c.Value)
	}
	return nil
}

func newBusOpener(mock bool) registry.BusOpener {
	if mock {
		return func(a config.ActuatorConfig) (regbus.Bus, error) {
			debug.Info("%s: using simulated FP5529 at %s", a.Name, a.DeviceKey())
			return vcm.NewSim(), nil
		}
	}
	return func(a config.ActuatorConfig) (regbus.Bus, error) {
		d, err := regbus.Open(a.Bus, uint16(a.Address))
		if err != nil {
			return nil, err
		}
		debug.Info("%s: opened %s", a.Name, d)
		return d, nil
	}
}

func overrideSettings(d config.DebugConfig) override.Settings {
	steps := make([]vcm.InitStep, len(d.InitPositions))
	for i, p := range d.InitPositions {
		steps[i] = vcm.InitStep{Position: p.Position, DelayMs: p.DelayMs}
	}
	return override.Settings{
		FixedEnabled:  d.EnableFixed,
		FixedPosition: uint16(d.FixedPosition),
		InitSteps:     steps,
	}
}

// resolveConfigPath prefers an explicit -config, then VCM_CONFIG, then the
// flag default.
func resolveConfigPath(flagVal string, flagSet bool, envVal string) string {
	if !flagSet && envVal != "" {
		return envVal
	}
	return flagVal
}

func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// applyEnv mutates cfg with environment overrides.
func applyEnv(cfg *config.Config, e EnvConfig) {
	if e.DebugLevel >= 0 && e.DebugLevel <= config.MaxDebugLevel {
		cfg.Defaults.DebugLevel = e.DebugLevel
	}
	if e.Mock {
		cfg.Defaults.MockGPIO = true
		cfg.Defaults.MockBus = true
	}
}

func disableExitLanding(cfg *config.Config) {
	off := false
	for i := range cfg.Actuators {
		cfg.Actuators[i].SoftLandingOnExit = &off
	}
}

// validatePosition checks the -position flag. -1 means "do not move".
func validatePosition(p int) error {
	if p < -1 || p > config.MaxPosition {
		return fmt.Errorf("position must be between 0 and %d (or -1), got %d", config.MaxPosition, p)
	}
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
