package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/golightmeter/pkg/config"
)

const usage = `Usage: lightmeter [flags] <command>

Commands:
  ports      list serial ports a relay controller may be attached to
  info       print the identity of the attached peripheral
  read       stream readings to the configured output
  calibrate  measure the enlarger timing profile

Flags:
`

func main() {
	var (
		configFlag         = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag           = flag.Bool("mock", false, "Use a simulated sensor and lamp instead of hardware")
		portFlag           = flag.String("p", "", "Relay serial port override (e.g., COM3 or /dev/ttyACM0)")
		modeFlag           = flag.String("mode", "", "Sensor mode override: normal, fast or single")
		countFlag          = flag.Int("n", 0, "Stop after this many readings (0 = until interrupted)")
		averageSamplesFlag = flag.Int("average-samples", -1, "Number of samples to average (0 = disabled, overrides config)")
		saveFlag           = flag.Bool("save", false, "Write the effective configuration back to the config file")
	)
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override serial port if provided via command line
	if *portFlag != "" {
		cfg.Enlarger.Serial.Port = *portFlag
	}
	if *modeFlag != "" {
		cfg.Sensor.Mode = *modeFlag
	}
	// Override average samples if provided via command line
	if *averageSamplesFlag >= 0 {
		cfg.Sensor.AverageSamples = *averageSamplesFlag
	}

	if *saveFlag {
		if err := cfg.Save(*configFlag); err != nil {
			log.Fatalf("Failed to save configuration: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &app{cfg: cfg, mock: *mockFlag}

	switch cmd := flag.Arg(0); cmd {
	case "ports":
		err = app.ports()
	case "info":
		err = app.info()
	case "read":
		err = app.read(ctx, *countFlag)
	case "calibrate":
		err = app.calibrate(ctx)
	default:
		flag.Usage()
		log.Fatalf("Unknown command %q", cmd)
	}
	if err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}
