package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloudeng.io/sync/errgroup"
	"go.uber.org/zap"

	"github.com/subtlepseudonym/shadowcaster"
	"github.com/subtlepseudonym/shadowcaster/config"
	"github.com/subtlepseudonym/shadowcaster/logger"
	"github.com/subtlepseudonym/shadowcaster/solar"
	"github.com/subtlepseudonym/shadowcaster/surface"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configFile := flag.String("config", "", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	listen := flag.String("listen", "", "http listen address (overrides config)")
	flag.Parse()

	// manually set local timezone for docker container
	if tz := os.Getenv("TZ"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERR: load tz location: %s\n", err)
			os.Exit(1)
		}
		time.Local = loc
	}

	conf, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERR: load config: %s\n", err)
		os.Exit(1)
	}
	if *debug {
		conf.Logging.Level = "debug"
	}
	if *listen != "" {
		conf.HTTP.Listen = *listen
	}

	log, err := logger.New(conf.Logging.Level, conf.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERR: init logger: %s\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	err = conf.Validate()
	if err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	eph, err := solar.NewEphemeris(conf.Ephemeris)
	if err != nil {
		log.Fatal("select ephemeris", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, conf, eph, log)
	if err != nil {
		log.Fatal("shadowcaster stopped", zap.Error(err))
	}
	log.Info("shadowcaster stopped")
}

func run(ctx context.Context, conf *config.Config, eph solar.Ephemeris, log *zap.Logger) error {
	schedCfg := shadowcaster.DefaultSchedulerConfig()
	schedCfg.Interval = conf.Refresh.Interval
	schedCfg.Shadow = conf.Shadow
	schedCfg.Zoom = conf.Viewport.Zoom

	web := surface.NewHTTP(eph, conf.Shadow, nil, log.Named("http"))

	surfaces := []shadowcaster.Surface{
		surface.Log{Logger: log.Named("surface")},
		web,
	}
	for label, lamp := range conf.Lamps {
		surfaces = append(surfaces, connectLamp(ctx, label, lamp, log.Named("lamp")))
	}

	sched := shadowcaster.NewScheduler(eph, schedCfg, log.Named("scheduler"), surfaces...)
	web.SetNotifier(sched)

	srv := &http.Server{
		Addr:    conf.HTTP.Listen,
		Handler: web.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx, locator(conf))
	})
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// locator tries the configured location first, then GeoIP. A nil
// locator means the default sun is used.
func locator(conf *config.Config) shadowcaster.Locator {
	var locators shadowcaster.FallbackLocator
	if conf.Location != nil {
		locators = append(locators, shadowcaster.StaticLocator{Location: *conf.Location})
	}
	if conf.GeoIP.Enabled {
		locators = append(locators, shadowcaster.HTTPLocator{
			URL:     conf.GeoIP.URL,
			Timeout: conf.GeoIP.Timeout,
		})
	}

	if len(locators) == 0 {
		return nil
	}
	return locators
}

// connectLamp dials the bulb in the background so that a slow or missing
// lamp never delays startup. State is held until the bulb answers.
func connectLamp(ctx context.Context, label string, conf config.Lamp, log *zap.Logger) shadowcaster.Surface {
	var lamp *surface.Lamp
	queue := surface.NewQueue(shadowcaster.SurfaceFunc(func(s shadowcaster.State) error {
		return lamp.Update(s)
	}))

	go func() {
		bulb, err := surface.ConnectLifx(label, conf.Host, conf.MAC)
		if err != nil {
			log.Error("connect lamp", zap.String("label", label), zap.Error(err))
			return
		}
		log.Info("registered lamp", zap.String("label", bulb.Label()), zap.Stringer("hardware", bulb))

		lamp = surface.NewLamp(bulb, conf.Transition, log)
		go lamp.Run(ctx)

		err = queue.Ready()
		if err != nil {
			log.Error("update lamp", zap.String("label", label), zap.Error(err))
		}
	}()

	return queue
}
