// dispatchctl is the dispatcher-side companion tool. It requests immediate
// positions over the ping channel, prints the stored trip state, and renders
// a continuously projected live position from the sparse fix stream.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"bustrack/internal/events"
	"bustrack/internal/livemap"
	storeredis "bustrack/internal/store/redis"
)

const renderInterval = 250 * time.Millisecond

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "ping":
		err = runPing(args)
	case "state":
		err = runState(args)
	case "follow":
		err = runFollow(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "dispatchctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  dispatchctl ping   -op <operator> [-redis addr]                request an immediate position
  dispatchctl state  -op <operator> [-redis addr]                print the stored trip state
  dispatchctl follow -op <operator> [-poll 1s] [-redis addr]     render the projected live position`)
}

func newClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func runPing(args []string) error {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	op := fs.String("op", "", "operator id")
	addr := fs.String("redis", "localhost:6379", "redis address")
	fs.Parse(args)

	if *op == "" {
		return fmt.Errorf("missing -op")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := newClient(*addr)
	defer client.Close()

	if err := events.NewPublisher(client).SendPing(ctx, *op); err != nil {
		return fmt.Errorf("sending ping: %w", err)
	}
	fmt.Printf("ping published to %s\n", events.PingChannel(*op))
	return nil
}

func runState(args []string) error {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	op := fs.String("op", "", "operator id")
	addr := fs.String("redis", "localhost:6379", "redis address")
	fs.Parse(args)

	if *op == "" {
		return fmt.Errorf("missing -op")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := newClient(*addr)
	defer client.Close()

	state, err := storeredis.NewTripStateStore(client).Get(ctx, *op)
	if err != nil {
		return fmt.Errorf("reading trip state: %w", err)
	}

	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// runFollow polls the stored trip state and feeds each fresh last location
// into the projector, printing the projected marker a few times a second.
// The printed position keeps moving between fixes the same way a map
// client's marker would.
func runFollow(args []string) error {
	fs := flag.NewFlagSet("follow", flag.ExitOnError)
	op := fs.String("op", "", "operator id")
	addr := fs.String("redis", "localhost:6379", "redis address")
	poll := fs.Duration("poll", time.Second, "state poll interval")
	fs.Parse(args)

	if *op == "" {
		return fmt.Errorf("missing -op")
	}

	client := newClient(*addr)
	defer client.Close()
	states := storeredis.NewTripStateStore(client)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	projector := livemap.NewProjector()
	pollTicker := time.NewTicker(*poll)
	defer pollTicker.Stop()
	renderTicker := time.NewTicker(renderInterval)
	defer renderTicker.Stop()

	// RecordedAt of the newest sample already fed to the projector.
	var lastSeen string

	fmt.Printf("following %s (poll %s, ctrl-c to stop)\n", *op, *poll)
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil

		case <-pollTicker.C:
			state, err := states.Get(ctx, *op)
			if err != nil {
				fmt.Fprintf(os.Stderr, "dispatchctl: reading trip state: %v\n", err)
				continue
			}
			if !state.Active() || state.LastLocation == nil {
				continue
			}
			if state.LastLocation.RecordedAt == lastSeen {
				continue
			}
			lastSeen = state.LastLocation.RecordedAt
			projector.Advance(state.LastLocation, time.Now())

		case now := <-renderTicker.C:
			marker, ok := projector.RenderedAt(now)
			if !ok {
				continue
			}
			fmt.Printf("%s  lat=%.6f lng=%.6f heading=%.0f\n",
				now.Format("15:04:05.000"), marker.Lat, marker.Lng, marker.Heading)
		}
	}
}
