package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"git.platform.alem.school/amibragim/order-events/cmd/orderapi"
	"git.platform.alem.school/amibragim/order-events/cmd/orderworker"
	"git.platform.alem.school/amibragim/order-events/internal/cli"
)

func main() {
	// check for help flag first
	if len(os.Args) == 2 && (os.Args[1] == "--help" || os.Args[1] == "-h") {
		cli.PrintUsage(os.Stdout)
		os.Exit(0)
	}

	// parse all command-line arguments
	mode, svcArgs, err := cli.ParseMode(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cli.PrintUsage(os.Stderr)
		os.Exit(2)
	}

	// ensure that mode is not empty
	if mode == "" {
		cli.PrintUsage(os.Stderr)
		os.Exit(2)
	}

	// create context cancelled on SIGINT/SIGTERM signals ensuring graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// run the service specified by the mode flag
	switch mode {
	case cli.ModeAPI:
		fs := flag.NewFlagSet(cli.ModeAPI, flag.ContinueOnError)
		port := fs.Int("port", 0, "HTTP port for the API (overrides API__PORT)")
		maxConc := fs.Int("max-concurrent", 50, "Maximum number of concurrent requests")
		cli.AttachUsage(fs, cli.ModeAPI)
		parseOrExit(fs, svcArgs)

		if *port < 0 || *port > 65535 {
			fmt.Fprintln(os.Stderr, "Error: --port must be between 1 and 65535")
			fs.Usage()
			os.Exit(2)
		}
		if *maxConc <= 0 {
			fmt.Fprintln(os.Stderr, "Error: --max-concurrent must be > 0")
			fs.Usage()
			os.Exit(2)
		}

		if err := orderapi.Run(ctx, *port, *maxConc); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case cli.ModeWorker:
		fs := flag.NewFlagSet(cli.ModeWorker, flag.ContinueOnError)
		prefetch := fs.Int("prefetch", 0, "RabbitMQ prefetch count (overrides WORKER__PREFETCH)")
		cli.AttachUsage(fs, cli.ModeWorker)
		parseOrExit(fs, svcArgs)

		if *prefetch < 0 || *prefetch > 65535 {
			fmt.Fprintln(os.Stderr, "Error: --prefetch must be between 1 and 65535")
			fs.Usage()
			os.Exit(2)
		}

		if err := orderworker.Run(ctx, *prefetch); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
	}
}

func parseOrExit(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}
