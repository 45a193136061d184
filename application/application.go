package application

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/bgp-garden-go/internal/bgp"
	"github.com/lk2023060901/bgp-garden-go/internal/bgp/routing"
	"github.com/lk2023060901/bgp-garden-go/internal/bgp/supervisor"
	"github.com/lk2023060901/bgp-garden-go/internal/clock"
	"github.com/lk2023060901/bgp-garden-go/internal/network/dataplane"
	"github.com/lk2023060901/bgp-garden-go/internal/network/serializer"
	zlog "github.com/lk2023060901/bgp-garden-go/pkg/log"
	"github.com/lk2023060901/bgp-garden-go/pkg/metrics"
	"github.com/lk2023060901/bgp-garden-go/pkg/util/hardware"
	zviper "github.com/lk2023060901/bgp-garden-go/pkg/util/viper"
)

func init() {
	metrics.Register(prometheus.DefaultRegisterer)
}

// router bundles everything one simulated router owns: its private
// virtual clock, routing table, outbound queue and session supervisor.
type router struct {
	cfg    RouterConfig
	sched  *clock.VirtualScheduler
	routes routing.Manager
	out    chan *bgp.Message
	sv     *supervisor.SessionSupervisor
}

// Application is the main runtime container for a Hermes simulation.
// It owns configuration, the simulated topology and the data plane.
type Application struct {
	cfg     *zviper.Config
	loggers map[string]*zlog.MLogger

	topo    topologyConfig
	routers []*router
	byName  map[string]*router
	dp      *dataplane.DataPlane
}

// New creates a new Application instance.
func New() *Application {
	return &Application{}
}

// Run is the entry of a Hermes application.
// It parses command-line arguments (os.Args) and loads configuration file
// using the following priority:
//  1. Default: ./config.yaml
//  2. Env: HERMES_CONFIG_FILE_PATH
//  3. CLI: --config <path> or --config=<path>
//
// After bootstrap it builds the configured topology and drives the
// simulation loop until the configured virtual duration elapses.
func (a *Application) Run() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(); err != nil {
		return err
	}
	hardware.LogSystemInfo()

	if err := a.cfg.Unmarshal(&a.topo); err != nil {
		return fmt.Errorf("failed to parse topology config: %w", err)
	}
	if err := a.topo.validate(); err != nil {
		return err
	}
	a.topo.Simulation.normalize()

	if err := a.buildTopology(); err != nil {
		return err
	}
	defer a.teardown()

	return a.runSimulation(context.Background())
}

// Config returns the loaded configuration, if any.
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger.
func (a *Application) Logger(name string) *zlog.MLogger {
	if a.loggers == nil {
		return &zlog.MLogger{Logger: zlog.L()}
	}
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return &zlog.MLogger{Logger: zlog.L()}
}

// buildTopology instantiates routers, wires links through the data plane
// and binds peer identifiers on both ends of every link.
func (a *Application) buildTopology() error {
	dp, err := dataplane.New(serializer.JSONSerializer{}, a.topo.Simulation.PoolSize)
	if err != nil {
		return err
	}
	a.dp = dp
	a.byName = make(map[string]*router, len(a.topo.Routers))

	ports := make(map[string]*dataplane.Port, len(a.topo.Routers))
	for _, rc := range a.topo.Routers {
		outSize := rc.OutboundQueueSize
		if outSize <= 0 {
			outSize = 128
		}
		r := &router{
			cfg:    rc,
			sched:  clock.NewVirtualScheduler(),
			routes: routing.NewManager(),
			out:    make(chan *bgp.Message, outSize),
		}
		sv, err := supervisor.New(supervisor.Config{
			RouterName:       rc.Name,
			LocalIdentifier:  rc.Identifier,
			SessionCount:     rc.Sessions,
			SessionParams:    rc.SessionParams(),
			InboundQueueSize: rc.InboundQueueSize,
		}, r.sched, r.routes, r.out)
		if err != nil {
			return err
		}
		r.sv = sv

		for _, route := range rc.Routes {
			if err := r.routes.AddRoute(route.Interface, route.Prefix); err != nil {
				return err
			}
		}

		a.routers = append(a.routers, r)
		a.byName[rc.Name] = r
		ports[rc.Name] = dp.AttachPort(rc.Name, r.out)
	}

	for _, lc := range a.topo.Links {
		ra, rb := a.byName[lc.A], a.byName[lc.B]
		ports[lc.A].Bind(lc.AInterface, rb.sv)
		ports[lc.B].Bind(lc.BInterface, ra.sv)

		sa, err := ra.sv.Session(lc.AInterface)
		if err != nil {
			return err
		}
		sb, err := rb.sv.Session(lc.BInterface)
		if err != nil {
			return err
		}
		sa.SetPeerIdentifier(rb.cfg.Identifier)
		sb.SetPeerIdentifier(ra.cfg.Identifier)
	}
	return nil
}

// runSimulation drives all routers tick by tick in lockstep while the
// data plane forwards messages in the background.
func (a *Application) runSimulation(ctx context.Context) error {
	sim := a.topo.Simulation

	g, gctx := errgroup.WithContext(ctx)
	dpCtx, stopDP := context.WithCancel(gctx)
	g.Go(func() error {
		err := a.dp.Run(dpCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	for _, r := range a.routers {
		r.sv.Start()
	}
	zlog.Info("simulation started",
		zap.Int("routers", len(a.routers)),
		zap.Duration("duration", sim.Duration),
		zap.Duration("tick", sim.Tick))

	for now := sim.Tick; now <= sim.Duration; now += sim.Tick {
		for _, r := range a.routers {
			if err := r.sv.Tick(gctx, now); err != nil {
				stopDP()
				_ = g.Wait()
				return err
			}
		}
		if sim.Settle > 0 {
			// Leave the data plane a moment to complete async deliveries
			// before the next lockstep round.
			time.Sleep(sim.Settle)
		}
	}

	stopDP()
	err := g.Wait()

	for _, r := range a.routers {
		valid := 0
		for i := 0; i < r.sv.NumSessions(); i++ {
			sess, serr := r.sv.Session(i)
			if serr == nil && sess.IsSessionValid() {
				valid++
			}
		}
		zlog.Info("simulation finished",
			zap.String("router_name", r.cfg.Name),
			zap.Int("valid_sessions", valid),
			zap.Int("routes", r.routes.NumRoutes()))
	}
	return err
}

// teardown releases all resources owned by the topology.
func (a *Application) teardown() {
	for _, r := range a.routers {
		if r.sv != nil {
			r.sv.Close()
		}
		r.sched.Close()
	}
	if a.dp != nil {
		a.dp.Close()
	}
}

// loadConfig resolves config file path and loads it via viper wrapper.
func (a *Application) loadConfig() (*zviper.Config, error) {
	configPath := "./config.yaml"

	if envPath := os.Getenv("HERMES_CONFIG_FILE_PATH"); envPath != "" {
		configPath = envPath
	}

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value after --config")
			}
			configPath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			val := strings.TrimPrefix(arg, "--config=")
			if val != "" {
				configPath = val
			}
			continue
		}
	}

	cfg := zviper.New()
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", configPath, err)
	}

	return cfg, nil
}

// initLogging initializes global and module-level loggers.
func (a *Application) initLogging() error {
	if err := a.initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	if err := a.initModuleLoggersFromConfig(); err != nil {
		return err
	}
	return nil
}

// initGlobalLoggerFromEnv configures the process-wide logger based on HERMES_LOG_* env vars.
//
// Priority:
//   - HERMES_LOG_ENABLE: "1"/"true" to enable outputs; others treated as disabled.
//   - HERMES_LOG_LEVEL: log level (default "info").
//   - HERMES_LOG_STDOUT: whether to log to stdout (default false).
//   - HERMES_LOG_FILE_DIR: log directory.
//   - HERMES_LOG_FILE: log file name (empty means no file).
//   - HERMES_LOG_FORMAT: log format ("console" or "json", default "console").
func (a *Application) initGlobalLoggerFromEnv() error {
	enabled := getenvBool("HERMES_LOG_ENABLE", false)

	cfg := &zlog.Config{
		Level:               getenvDefault("HERMES_LOG_LEVEL", "info"),
		Format:              getenvDefault("HERMES_LOG_FORMAT", "console"),
		DisableTimestamp:    false,
		Stdout:              getenvBool("HERMES_LOG_STDOUT", false),
		DisableCaller:       false,
		DisableStacktrace:   false,
		DisableErrorVerbose: true,
		File: zlog.FileLogConfig{
			RootPath: getenvDefault("HERMES_LOG_FILE_DIR", ""),
			Filename: getenvDefault("HERMES_LOG_FILE", ""),
		},
	}

	// When not enabled, direct all outputs to a discarded sink.
	if !enabled {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("init global logger from env: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig creates named loggers from YAML config under "logging" key.
//
// Example:
//
//	logging:
//	  supervisor:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: supervisor.log
func (a *Application) initModuleLoggersFromConfig() error {
	if a.cfg == nil {
		return nil
	}

	// Unmarshal "logging" section into a map[name]Config.
	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		// If the key doesn't exist, UnmarshalKey typically leaves raw empty without error.
		// Any real error should be returned.
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger}
	}

	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
