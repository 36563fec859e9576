package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"tftpanel/internal/battery"
	"tftpanel/internal/config"
	appLog "tftpanel/internal/log"
	"tftpanel/internal/pipeline"
	"tftpanel/internal/screen"
	"tftpanel/internal/sim"
	"tftpanel/internal/st7789"
	"tftpanel/internal/tft"
	"tftpanel/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	logLevel   string
	once       bool
	sim        bool
	window     bool
	scale      int
}

func main() {
	os.Exit(run(parseFlags()))
}

// run returns the process exit code so deferred cleanup always happens.
func run(flags flagConfig) int {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	if lvl, err := appLog.ParseLevel(conf.LogLevel); err != nil {
		appLog.Warn("unknown log level, keeping info", "log_level", conf.LogLevel)
	} else {
		appLog.SetLevel(lvl)
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		return 1
	}

	appLog.Info("tftpanel starting",
		"listen", conf.Listen,
		"refresh", conf.RefreshCron,
		"source", conf.Source.Kind,
		"spi", conf.SPI.Bus,
		"sim", flags.sim,
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		panel   *tft.Adafruit130
		preview web.Previewer
		emu     *sim.Panel
		cleanup func()
	)
	if flags.sim {
		emu = sim.New(tft.Adafruit130Width, tft.Adafruit130Height)
		panel, err = tft.Attach(emu)
		preview = emu
		cleanup = func() {}
	} else {
		panel, cleanup, err = openHardware(conf)
	}
	if err != nil {
		// A panel that did not come up is fatal for this application.
		var bue *tft.BringUpError
		if errors.As(err, &bue) {
			appLog.Error("panel bring-up failed", bue.Err, "step", bue.Step)
		} else {
			appLog.Error("panel open failed", err)
		}
		return 1
	}
	defer cleanup()
	defer func() {
		if err := panel.Close(); err != nil {
			appLog.Error("panel close failed", err)
		}
	}()
	appLog.Info("panel ready", "panel", panel.String(), "ownership", panel.Ownership())

	scr := screen.New(panel)
	bat := batteryReader(conf, flags.sim)
	pl := pipeline.New(scr, conf.Source, bat)

	if err := pl.Run(ctx); err != nil && flags.once {
		return 1
	}
	if flags.once {
		appLog.Info("single refresh done; exiting")
		return 0
	}

	if conf.RefreshCron != "" {
		c := cron.New()
		if _, err := c.AddFunc(conf.RefreshCron, func() {
			_ = pl.Run(ctx)
		}); err != nil {
			appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
			return 1
		}
		c.Start()
		defer c.Stop()
		appLog.Info("refresh scheduled", "refresh", conf.RefreshCron)
	}

	if conf.Listen != "" {
		srv := web.NewServer(web.Options{
			Screen:    scr,
			BasicAuth: conf.BasicAuth,
			Refresh:   pl.Run,
			Preview:   preview,
			Battery:   bat,
		})
		go func() {
			if err := srv.Serve(ctx, conf.Listen); err != nil {
				appLog.Error("HTTP server failed", err)
				stop()
			}
		}()
	}

	if flags.window && emu != nil {
		// The window owns the main goroutine until it closes.
		if err := sim.RunWindow(ctx, emu, flags.scale); err != nil {
			appLog.Error("simulator window failed", err)
		}
		stop()
	}

	<-ctx.Done()
	appLog.Info("tftpanel exiting")
	return 0
}

// openHardware initializes periph, opens the SPI port and GPIO lines named
// in conf and brings the panel up. cleanup releases the SPI port.
func openHardware(conf *config.Config) (*tft.Adafruit130, func(), error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}

	port, err := spireg.Open(conf.SPI.Bus)
	if err != nil {
		return nil, nil, fmt.Errorf("open spi %q: %w", conf.SPI.Bus, err)
	}
	cleanup := func() {
		if err := port.Close(); err != nil {
			appLog.Warn("spi close failed", "err", err)
		}
	}

	dc, err := pinByName(conf.Pins.DC)
	if err == nil && dc == nil {
		err = errors.New("pins.dc is required")
	}
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	rst, err := pinByName(conf.Pins.RST)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	bl, err := pinByName(conf.Pins.Backlight)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	panel, err := tft.Open(st7789.Params{
		Port:      port,
		DC:        dc,
		RST:       rst,
		BL:        bl,
		Frequency: physic.Frequency(conf.SPI.Hz) * physic.Hertz,
		Mode:      spi.Mode(conf.SPI.Mode),
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return panel, cleanup, nil
}

// pinByName resolves a gpioreg name. An empty name yields a nil pin, which
// the driver treats as not wired.
func pinByName(name string) (gpio.PinOut, error) {
	if name == "" {
		return nil, nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("unknown gpio %q", name)
	}
	return p, nil
}

// batteryReader picks the status bar source, or nil when disabled. The
// simulator falls back to made-up values when no HAT answers.
func batteryReader(conf *config.Config, simulated bool) battery.Reader {
	if !conf.Battery.Enabled {
		return nil
	}
	if conf.Battery.Mock {
		return battery.NewMockReader()
	}
	i2c := battery.NewI2CReader(conf.Battery.Bus, conf.Battery.Addr)
	if simulated {
		return battery.Fallback{Primary: i2c, Secondary: battery.NewMockReader()}
	}
	return i2c
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/tftpanel/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one refresh and exit")
	flag.BoolVar(&cfg.sim, "sim", false, "Drive an in-memory ST7789 simulator instead of SPI hardware")
	flag.BoolVar(&cfg.window, "window", false, "With -sim, show the simulated panel in a desktop window")
	flag.IntVar(&cfg.scale, "scale", 2, "Window scale factor for -window")

	flag.Parse()

	return cfg
}
