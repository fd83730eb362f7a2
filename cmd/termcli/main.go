package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Station-Manager/serialcomm"
	"github.com/Station-Manager/serialcomm/internal/logger"
)

func main() {
	configFile := flag.String("config", "", "JSON config file; flags override its values")
	device := flag.String("device", "", "serial device path (default from config)")
	driver := flag.String("driver", "", "serial driver: bugst, tarm or goburrow")
	baud := flag.Int("baud", 0, "baud rate (default 9600)")
	dataBits := flag.Int("databits", 0, "data bits (default 8)")
	parity := flag.String("parity", "", "parity (N,O,E,M,S)")
	stopBits := flag.Float64("stopbits", 0, "stop bits (1, 1.5 or 2)")
	eol := flag.String("eol", `\r\n`, "line ending appended to each stdin line")
	list := flag.Bool("list", false, "list serial devices and exit")
	logFile := flag.String("log-file", "", "write logs to this file instead of stderr")
	logLevel := flag.String("log-level", "warn", "log level")

	flag.Parse()

	if *list {
		for _, p := range serialcomm.ListDevices() {
			fmt.Printf("%s\t%s\t%s\n", p.Name, p.DeviceIdentifier(), p.Product)
		}
		return
	}

	log, closer, err := logger.New(logger.Config{Level: *logLevel, File: *logFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer closer.Close()

	var cfg serialcomm.Config
	if *configFile != "" {
		if cfg, err = serialcomm.LoadConfig(*configFile); err != nil {
			log.Fatal().Err(err).Msg("loading config")
		}
	}

	flags := serialcomm.Config{
		Driver:   serialcomm.Driver(*driver),
		PortName: *device,
		BaudRate: serialcomm.BaudRate(*baud),
		DataBits: serialcomm.DataBits(*dataBits),
	}
	if flags.Parity, err = serialcomm.ParseParity(*parity); err != nil {
		log.Fatal().Err(err).Msg("parsing flags")
	}
	if flags.StopBits, err = serialcomm.ParseStopBits(*stopBits); err != nil {
		log.Fatal().Err(err).Msg("parsing flags")
	}
	cfg = serialcomm.DefaultConfig().Merge(cfg).Merge(flags)
	if cfg.PortName == "" {
		cfg.PortName = "/dev/ttyUSB0"
	}

	transport, err := serialcomm.NewTransport(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("creating transport")
	}

	adapter := serialcomm.New(transport, cfg, serialcomm.WithLogger(log))
	adapter.SetOnReceiveFunc(func(chunk string) {
		fmt.Print(chunk)
	})
	adapter.SetOnErrorFunc(func(err error) {
		fmt.Fprintf(os.Stderr, "read error: %v\n", err)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = adapter.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	defer func() {
		if e := adapter.Disconnect(); e != nil {
			log.Error().Err(e).Msg("disconnect")
		}
	}()

	fmt.Fprintf(os.Stderr, "Connected to %s (device %s). Type lines to send, Ctrl+D to exit.\n",
		cfg.PortName, adapter.DeviceIdentifier())

	lineEnd := unescape(*eol)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			log.Error().Err(err).Msg("stdin")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := adapter.Write(ctx, line+lineEnd); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
	}
}

// unescape turns the \r, \n and \t escapes typed on a command line into
// the characters they name.
func unescape(s string) string {
	return strings.NewReplacer(`\r`, "\r", `\n`, "\n", `\t`, "\t").Replace(s)
}
