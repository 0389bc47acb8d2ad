// cmd/pino/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pino/internal/board"
	"pino/internal/cli"
	"pino/internal/comport"
	"pino/internal/config"
	"pino/internal/deploy"
	"pino/internal/discovery"
	"pino/internal/service"
	"pino/internal/utils"
)

const version = "0.3.0"

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case "ports":
		err = handlePorts(ctx, args)
	case "deploy":
		err = handleDeploy(ctx, args)
	case "blink":
		err = handleBlink(ctx, args)
	case "multino":
		err = handleMultino(ctx, args)
	case "pulse":
		err = handlePulse(ctx, args)
	case "shell":
		err = handleShell(ctx, args)
	case "version":
		fmt.Printf("pino version %s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var deployErr *comport.DeployError
		if errors.As(err, &deployErr) && len(deployErr.Output) > 0 {
			os.Stderr.Write(deployErr.Output)
		}
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`pino - control an Arduino board over a serial link

Usage: pino <command> [options]

Commands:
  ports      List serial ports and identify known boards
  deploy     Compile and upload the firmware
  blink      Blink the built-in LED
  multino    Blink the built-in LED of two boards in opposite phase
  pulse      Run each pulse setting on the built-in LED
  shell      Interactive console (or run one console command)
  version    Show pino version
  help       Show this help message

Common Flags:
  --config <file>      Board file with comport, pinmode and experimental sections
  --port <name>        Serial port, or socket://host:port for a network bridge
  --baudrate <rate>    Baud rate (default: 115200)
  --timeout <dur>      Read timeout, 0 waits forever (default: 1s)
  --warmup <dur>       Wait after opening the port (default: 2s)
  --deploy             Upload the firmware before connecting
  --log-level <level>  debug, info, warn or error (default: warn)

Examples:
  pino ports
  pino deploy --port /dev/ttyACM0
  pino blink --config ./config/pino.yaml --deploy
  pino multino --port /dev/ttyACM0 --port2 /dev/ttyACM1
  pino shell --port /dev/ttyACM0 connect`)
}

// boardFlags are the flags shared by every command that talks to a board
type boardFlags struct {
	config   *string
	port     *string
	arduino  *string
	firmware *string
	baudRate *int
	timeout  *time.Duration
	warmup   *time.Duration
	deploy   *bool
	template *string
	logLevel *string
}

func addBoardFlags(fs *flag.FlagSet) *boardFlags {
	return &boardFlags{
		config:   fs.String("config", "", "Board file"),
		port:     fs.String("port", "", "Serial port"),
		arduino:  fs.String("arduino", "", "Path of the deploy tool"),
		firmware: fs.String("firmware", "", "Firmware sketch to upload"),
		baudRate: fs.Int("baudrate", 0, "Baud rate"),
		timeout:  fs.Duration("timeout", time.Second, "Read timeout"),
		warmup:   fs.Duration("warmup", 2*time.Second, "Wait after opening the port"),
		deploy:   fs.Bool("deploy", false, "Upload the firmware before connecting"),
		template: fs.String("deploy-template", "", "Upload command line, e.g. 'arduino-cli upload -p {port} {firmware}'"),
		logLevel: fs.String("log-level", "warn", "Log level"),
	}
}

// load reads the board file, when given, and lays the flags over it
func (f *boardFlags) load(fs *flag.FlagSet) (*config.Config, *zap.Logger, error) {
	cfg := &config.Config{}
	if *f.config != "" {
		loaded, err := config.Load(*f.config)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}

	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	if *f.port != "" {
		cfg.Comport.Port = *f.port
	}
	if *f.arduino != "" {
		cfg.Comport.Arduino = *f.arduino
	}
	if *f.firmware != "" {
		cfg.Comport.DotIno = *f.firmware
	}
	if *f.baudRate != 0 {
		cfg.Comport.BaudRate = *f.baudRate
	}
	if set["timeout"] || *f.config == "" {
		cfg.Comport.Timeout = f.timeout.Seconds()
	}
	if set["warmup"] || *f.config == "" {
		cfg.Comport.Warmup = f.warmup.Seconds()
	}
	if *f.deploy {
		cfg.Comport.Deploy = true
	}
	if *f.template != "" {
		cfg.Comport.DeployTemplate = *f.template
	}

	logger, err := utils.NewLogger(&config.LoggingConfig{
		Level:  *f.logLevel,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newComport(settings config.ComportSettings, logger *zap.Logger) (*comport.Comport, error) {
	c := comport.Derive(settings).
		WithLogger(logger).
		WithDeployer(deploy.NewArduinoCLI(settings.DeployTemplate, logger))
	return c, c.Err()
}

// open deploys when asked, connects and applies the pin modes of cfg
func open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*comport.Comport, *board.Optuino, error) {
	c, err := newComport(cfg.Comport, logger)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Comport.Deploy {
		fmt.Printf("Deploying %s to %s ...\n", c.FirmwarePath(), c.Port())
		if err := c.Deploy(ctx); err != nil {
			return nil, nil, err
		}
	}
	if err := c.Connect(ctx); err != nil {
		return nil, nil, err
	}

	o, err := board.NewOptuino(c, logger)
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	if err := o.ApplyPinModeSettings(ctx, cfg.PinMode); err != nil {
		c.Close()
		return nil, nil, err
	}
	return c, o, nil
}

func handlePorts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ports", flag.ExitOnError)
	onlyKnown := fs.Bool("known", false, "Only list ports of known boards")
	usb := fs.Bool("usb", false, "Also list USB devices without a serial port")
	bridges := fs.String("bridges", "", "Comma separated host:port serial bridges to probe")
	fs.Parse(args)

	cfg := &config.Config{Discovery: config.DiscoveryConfig{
		OnlyKnown:   *onlyKnown,
		USB:         *usb,
		ScanTimeout: 10 * time.Second,
	}}
	if *bridges != "" {
		cfg.Discovery.Bridges = strings.Split(*bridges, ",")
	}

	ports, err := service.NewDiscoveryService(cfg, nil).Scan(ctx, "all")
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(describePort(p))
	}
	return nil
}

func describePort(p *discovery.DiscoveredPort) string {
	line := fmt.Sprintf("%-24s %-6s", p.Name, p.ConnectionType)
	if p.IsUSB {
		line += fmt.Sprintf(" %s:%s", p.VendorID, p.ProductID)
	}
	if p.Known() {
		line += fmt.Sprintf("  %s %s", p.Vendor, p.Board)
	}
	return line
}

func handleDeploy(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("deploy", flag.ExitOnError)
	bf := addBoardFlags(fs)
	fs.Parse(args)

	cfg, logger, err := bf.load(fs)
	if err != nil {
		return err
	}
	defer utils.CloseLogger(logger)

	c, err := newComport(cfg.Comport, logger)
	if err != nil {
		return err
	}
	fmt.Printf("Deploying %s to %s ...\n", c.FirmwarePath(), c.Port())
	if err := c.Deploy(ctx); err != nil {
		return err
	}
	fmt.Println("Deploy completed")
	return nil
}

func handleBlink(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("blink", flag.ExitOnError)
	bf := addBoardFlags(fs)
	pin := fs.Int("pin", cli.LEDBuiltin, "LED pin")
	cycles := fs.Int("cycles", 10, "Number of on/off cycles")
	interval := fs.Duration("interval", time.Second, "Time each level is held")
	fs.Parse(args)

	cfg, logger, err := bf.load(fs)
	if err != nil {
		return err
	}
	defer utils.CloseLogger(logger)

	c, o, err := open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	return cli.Blink(ctx, []*board.Arduino{o.Arduino}, *pin, *cycles, *interval)
}

func handleMultino(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("multino", flag.ExitOnError)
	bf := addBoardFlags(fs)
	port2 := fs.String("port2", "", "Serial port of the second board (required)")
	pin := fs.Int("pin", cli.LEDBuiltin, "LED pin")
	cycles := fs.Int("cycles", 10, "Number of on/off cycles")
	interval := fs.Duration("interval", time.Second, "Time each level is held")
	fs.Parse(args)

	if *port2 == "" {
		fs.Usage()
		return errors.New("--port2 flag is required")
	}

	cfg, logger, err := bf.load(fs)
	if err != nil {
		return err
	}
	defer utils.CloseLogger(logger)

	c1, o1, err := open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c1.Close()

	second := *cfg
	second.Comport.Port = *port2
	c2, o2, err := open(ctx, &second, logger)
	if err != nil {
		return err
	}
	defer c2.Close()

	return cli.Blink(ctx, []*board.Arduino{o1.Arduino, o2.Arduino}, *pin, *cycles, *interval)
}

func handlePulse(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("pulse", flag.ExitOnError)
	bf := addBoardFlags(fs)
	pin := fs.Int("pin", cli.LEDBuiltin, "LED pin")
	hold := fs.Duration("hold", 2*time.Second, "Time each setting pulses")
	fs.Parse(args)

	cfg, logger, err := bf.load(fs)
	if err != nil {
		return err
	}
	defer utils.CloseLogger(logger)

	settings := cfg.Experimental.Pulse
	if len(settings) == 0 {
		settings = []config.PulseSetting{
			{Frequency: 5, Duration: 10},
			{Frequency: 10, Duration: 10},
			{Frequency: 20, Duration: 10},
		}
	}

	c, o, err := open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	return cli.Pulse(ctx, o, *pin, settings, *hold, os.Stdout)
}

func handleShell(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("shell", flag.ExitOnError)
	bf := addBoardFlags(fs)
	fs.Parse(args)

	cfg, logger, err := bf.load(fs)
	if err != nil {
		return err
	}
	defer utils.CloseLogger(logger)

	c, err := newComport(cfg.Comport, logger)
	if err != nil {
		return err
	}
	if cfg.Comport.Deploy {
		if err := c.Deploy(ctx); err != nil {
			return err
		}
	}

	return cli.NewShell(cli.NewConsole(c, logger)).Run(fs.Args()...)
}
