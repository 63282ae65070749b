// Command msgrelay-submit hands one message to a running msgrelayd. It exits 0 when the
// relay accepted the message and 1 otherwise; delivery to the store is not awaited.
//
//	msgrelay-submit "order 1042 shipped"
//	echo "order 1042 shipped" | msgrelay-submit --stdin
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/velmie/msgrelay/ipc"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "msgrelay-submit: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stderr io.Writer) error {
	var (
		endpoint  string
		timeout   time.Duration
		fromStdin bool
	)

	flagSet := pflag.NewFlagSet("msgrelay-submit", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&endpoint, "endpoint", "e", ipc.DefaultPath(), "relay socket path")
	flagSet.DurationVarP(&timeout, "timeout", "t", ipc.DefaultSubmitTimeout, "how long to wait for the relay to accept")
	flagSet.BoolVar(&fromStdin, "stdin", false, "read the message from standard input")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	message, err := readMessage(flagSet.Args(), fromStdin, stdin)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return ipc.SubmitTo(ctx, endpoint, message)
}

func readMessage(args []string, fromStdin bool, stdin io.Reader) (string, error) {
	if fromStdin {
		if len(args) > 0 {
			return "", fmt.Errorf("unexpected argument with --stdin: %s", args[0])
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimSuffix(string(data), "\n"), nil
	}
	if len(args) != 1 {
		return "", errors.New("usage: msgrelay-submit [flags] <message>")
	}

	return args[0], nil
}
