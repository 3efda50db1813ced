package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	ModeAPI    = "order-api"
	ModeWorker = "order-worker"
)

// isKnownMode checks if the provided mode name is known.
func isKnownMode(s string) (string, bool) {
	switch strings.ToLower(s) {
	case ModeAPI, "api":
		return ModeAPI, true
	case ModeWorker, "worker":
		return ModeWorker, true
	default:
		return "", false
	}
}

// ParseMode supports:
//
//	--mode=<value>
//	<value> (subcommand shorthand), e.g., `order-worker --prefetch=20`
func ParseMode(args []string) (string, []string, error) {
	var mode string
	var out []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "--mode=") {
			mode = strings.TrimPrefix(arg, "--mode=")
			continue
		}

		if mode == "" {
			if m, ok := isKnownMode(arg); ok {
				mode = m
				continue
			}
		}
		out = append(out, arg)
	}

	if mode == "" {
		return "", out, nil
	}

	m, ok := isKnownMode(mode)
	if !ok {
		return "", out, fmt.Errorf("unknown mode %q", mode)
	}

	return m, out, nil
}

// PrintUsage prints the usage information with examples.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, "\033[36m") // switch the color to cyan

	fmt.Fprintln(w, `Usage:
  ./order-events --mode=<service> [flags]

Services (modes):
  order-api       HTTP API that publishes order-created events
  order-worker    RabbitMQ consumer that processes order events

Configuration is read from CONFIG_PATH (default config/config.yaml),
then from environment variables such as RABBITMQ__HOST or WORKER__PREFETCH.

Examples:
  ./order-events --mode=order-api --port=8080 --max-concurrent=50
  ./order-events --mode=order-worker --prefetch=10`)

	fmt.Fprint(w, "\033[0m") // switch back to normal
}

func AttachUsage(fs *flag.FlagSet, mode string) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ./order-events --mode=%s [flags]\n", mode)
		fs.PrintDefaults()
	}
}
