// sagactl inspects saga runs recorded in Redis.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"grocer/internal/kv"
	"grocer/internal/orders"
	"grocer/internal/saga"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

var errUsage = errors.New("usage")

func main() {
	_ = godotenv.Load()

	redisURL := flag.String("redis", os.Getenv("REDIS_URL"), "Redis connection URL (or set REDIS_URL)")
	sagaName := flag.String("saga", orders.SagaName, "Saga name")
	timeout := flag.Duration("timeout", 10*time.Second, "Timeout for each command")
	flag.Parse()

	if *redisURL == "" {
		fmt.Fprintln(os.Stderr, "Error: REDIS_URL or -redis flag required")
		os.Exit(1)
	}
	opts, err := redis.ParseURL(*redisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing redis url: %v\n", err)
		os.Exit(1)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	err = run(ctx, kv.NewRedisStore(client), *sagaName, flag.Args(), os.Stdout)
	if errors.Is(err, errUsage) {
		printUsage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `sagactl - saga run inspection

Usage:
  sagactl [flags] <command> [args]

Flags:
  -redis string     Redis connection URL (or set REDIS_URL env var)
  -saga string      Saga name (default "ORDER_SAGA")
  -timeout duration Timeout for each command (default 10s)

Commands:
  show <reference>        Resolve a reference (order id) and show its run
  state <saga-id>         Show the persisted state of a run
  events <saga-id>        List the events of a run
  step <saga-id> <index>  Show the result recorded for one step`)
}

func run(ctx context.Context, store kv.Store, name string, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "show":
		if len(rest) != 1 {
			return errUsage
		}
		id, err := saga.Lookup(ctx, store, name, rest[0])
		if err != nil {
			return fmt.Errorf("lookup %s: %w", rest[0], err)
		}
		fmt.Fprintf(out, "Reference: %s\n", rest[0])
		if err := showState(ctx, out, store, name, id); err != nil {
			return err
		}
		fmt.Fprintln(out)
		return showEvents(ctx, out, store, name, id)
	case "state":
		if len(rest) != 1 {
			return errUsage
		}
		return showState(ctx, out, store, name, rest[0])
	case "events":
		if len(rest) != 1 {
			return errUsage
		}
		return showEvents(ctx, out, store, name, rest[0])
	case "step":
		if len(rest) != 2 {
			return errUsage
		}
		index, err := strconv.Atoi(rest[1])
		if err != nil || index < 0 {
			return fmt.Errorf("invalid step index %q", rest[1])
		}
		result, err := saga.LoadStepResult[json.RawMessage](ctx, store, name, rest[0], index)
		if err != nil {
			return fmt.Errorf("load step %d: %w", index, err)
		}
		prettyPrint(out, result)
		return nil
	case "help":
		printUsage(out)
		return nil
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func showState(ctx context.Context, out io.Writer, store kv.Store, name, id string) error {
	state, err := saga.LoadState[json.RawMessage](ctx, store, name, id)
	if err != nil {
		return fmt.Errorf("load state %s: %w", id, err)
	}
	fmt.Fprintf(out, "Saga:     %s\n", id)
	fmt.Fprintf(out, "Status:   %s\n", state.Status)
	fmt.Fprintf(out, "Step:     %d\n", state.CurrentStep)
	if state.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", state.Error)
	}
	if len(state.Data) > 0 {
		fmt.Fprintln(out, "\nData:")
		prettyPrint(out, state.Data)
	}
	return nil
}

func showEvents(ctx context.Context, out io.Writer, store kv.Store, name, id string) error {
	events, err := saga.LoadEvents[json.RawMessage](ctx, store, name, id)
	if err != nil {
		return fmt.Errorf("load events %s: %w", id, err)
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "No events recorded.")
		return nil
	}
	fmt.Fprintf(out, "%-30s %-5s %s\n", "EVENT", "STEP", "AT")
	fmt.Fprintln(out, strings.Repeat("-", 60))
	for _, ev := range events {
		at := time.UnixMilli(ev.Metadata.Timestamp).UTC().Format(time.RFC3339)
		fmt.Fprintf(out, "%-30s %-5d %s\n", ev.Type, ev.Metadata.StepIndex, at)
	}
	return nil
}

func prettyPrint(out io.Writer, data []byte) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		fmt.Fprintf(out, "  %s\n", string(data))
		return
	}
	pretty, _ := json.MarshalIndent(v, "  ", "  ")
	fmt.Fprintf(out, "  %s\n", string(pretty))
}
