package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/banshee-data/usprobe/internal/config"
	"github.com/banshee-data/usprobe/internal/db"
	"github.com/banshee-data/usprobe/internal/monitor"
	"github.com/banshee-data/usprobe/internal/monitoring"
	"github.com/banshee-data/usprobe/internal/probe"
	"github.com/banshee-data/usprobe/internal/timeutil"
	"github.com/banshee-data/usprobe/internal/transport"
	"github.com/banshee-data/usprobe/internal/version"
)

var (
	devMode    = flag.Bool("dev", false, "Run against the built-in probe simulator")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	port       = flag.String("port", "", "Control serial port (overrides config, ignored in dev mode)")
	dataAddr   = flag.String("data", "", "Frame data channel address host:port (overrides config)")
	configPath = flag.String("config", "", "Acquisition config file (.json or .yaml)")
	dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
	preset     = flag.String("preset", "", "Apply a stored preset after the config file")
	mdns       = flag.Bool("mdns", false, "Advertise the admin server over mDNS")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

const mdnsService = "_usprobe._tcp"

func loadConfig() (*config.AcquisitionConfig, error) {
	path := *configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err != nil {
			return config.DefaultAcquisitionConfig(), nil
		}
		path = config.DefaultConfigPath
	}
	cfg, err := config.LoadAcquisitionConfig(path)
	if err != nil {
		return nil, err
	}
	log.Printf("loaded acquisition config from %s", path)
	return cfg, nil
}

func applyFlags(cfg *config.AcquisitionConfig) {
	if *listen != "" {
		cfg.ListenAddr = config.String(*listen)
	}
	if *port != "" {
		cfg.SerialPort = config.String(*port)
	}
	if *dataAddr != "" {
		cfg.DataAddr = config.String(*dataAddr)
	}
	if *dbPath != "" {
		cfg.DBPath = config.String(*dbPath)
	}
}

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.String())
		return
	}
	monitoring.SetDebug(*debug)
	log.Print(version.String())

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlags(cfg)

	database, err := db.NewDB(cfg.GetDBPath())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	var (
		tr      transport.Transport
		serialT *transport.SerialTransport
		sim     *transport.Simulator
	)
	if *devMode {
		sim = transport.NewSimulator()
		tr = sim
		log.Printf("dev mode: using probe simulator")
	} else {
		serialT, err = transport.NewSerialTransport(cfg.GetSerialPort(),
			transport.PortOptions{BaudRate: cfg.GetBaudRate()}, cfg.GetDataAddr())
		if err != nil {
			log.Fatalf("failed to open control port %s: %v", cfg.GetSerialPort(), err)
		}
		serialT.SetCommandTimeout(cfg.GetCommandTimeout())
		defer serialT.Close()
		tr = serialT
		log.Printf("opened control port %s", cfg.GetSerialPort())
	}

	device := probe.NewDevice(probe.DeviceConfig{
		Transport: tr,
		Recorder:  database,
	})

	mon := monitor.New(device)
	queue := probe.NewQueueSink(probe.MultiSink{mon}, cfg.GetSinkQueueLen())
	mon.SetDroppedFunc(queue.Dropped)
	device.SetSink(queue)

	if err := device.Configure(cfg); err != nil {
		log.Fatalf("failed to apply config: %v", err)
	}
	if *preset != "" {
		p, err := database.GetPresetByName(*preset)
		if err != nil {
			log.Fatalf("failed to load preset %q: %v", *preset, err)
		}
		if err := device.Configure(p.Config); err != nil {
			log.Fatalf("failed to apply preset %q: %v", *preset, err)
		}
		log.Printf("applied preset %q (%s)", p.Name, p.Mode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = device.Connect(connectCtx)
	cancel()
	if err != nil {
		log.Fatalf("failed to connect to probe: %v", err)
	}
	log.Printf("connected to probe, FPGA rev %s", device.GetFPGARevDateString())

	if err := device.StartRecording(); err != nil {
		log.Fatalf("failed to start recording: %v", err)
	}

	var wg sync.WaitGroup

	// the simulator stands in for the probe's frame clock in dev mode
	if sim != nil {
		interval := cfg.GetFrameInterval()
		wg.Add(1)
		go func() {
			defer wg.Done()
			gen := probe.SyntheticGenerator(device, interval)
			if err := sim.Run(ctx, timeutil.RealClock{}, interval, gen); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("simulator stopped: %v", err)
			}
			log.Print("simulator routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		if serialT != nil {
			serialT.Mux().AttachAdminRoutes(mux)
		}
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach database admin routes: %v", err)
		}
		mon.AttachAdminRoutes(mux)
		mux.Handle("/metrics", mon.MetricsHandler())

		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			monitoring.Debugf("got request %q", r.URL.Path)
			mux.ServeHTTP(w, r)
		})

		ln, err := net.Listen("tcp", cfg.GetListenAddr())
		if err != nil {
			log.Printf("failed to listen on %s: %v", cfg.GetListenAddr(), err)
			stop()
			return
		}
		log.Printf("admin server listening on %s", ln.Addr())

		if *mdns {
			host, _ := os.Hostname()
			tcpPort := ln.Addr().(*net.TCPAddr).Port
			server, err := zeroconf.Register("usprobe-"+host, mdnsService, "local.", tcpPort,
				[]string{"txtvers=1", "version=" + version.Version, "path=/debug/probe"}, nil)
			if err != nil {
				log.Printf("mDNS registration failed: %v", err)
			} else {
				defer server.Shutdown()
				log.Printf("mDNS registered %s on port %d", mdnsService, tcpPort)
			}
		}

		server := &http.Server{Handler: h}
		go func() {
			if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server error: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	<-ctx.Done()
	wg.Wait()

	if err := device.StopRecording(); err != nil {
		log.Printf("failed to stop recording: %v", err)
	}
	if err := device.Disconnect(); err != nil {
		log.Printf("failed to disconnect: %v", err)
	}
	queue.Close()
	log.Printf("Graceful shutdown complete")
}
