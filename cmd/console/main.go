// Operator console for linewatch: renders the live dashboard state in the
// terminal and issues relay toggles and threshold changes over the server's
// websocket feed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cepro/linewatch/config"
	"github.com/cepro/linewatch/viewmodel"
	"github.com/chzyer/readline"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	cfgPath := flag.String("config", "linewatch.toml", "path to the config file")
	host := flag.String("host", "", "linewatch server host:port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	target := cfg.Console.Host
	if *host != "" {
		target = *host
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := newFeedClient(target)
	go feed.run(ctx)

	// Threshold edits are debounced so fiddling with the value doesn't turn into
	// a write per keypress on the shared store.
	threshold := viewmodel.NewDebouncer(500*time.Millisecond, func(value float64) {
		feed.send(map[string]any{"type": "setThreshold", "value": value})
	})
	defer threshold.Stop()

	rl, err := readline.New("linewatch> ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Println("Commands: show, chart, toggle <id> on|off, threshold <amps>, exit")

	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or readline.ErrInterrupt
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "show":
			show(feed)
		case "chart":
			chart(feed)
		case "toggle":
			if len(fields) != 3 || (fields[2] != "on" && fields[2] != "off") {
				fmt.Println("usage: toggle <id> on|off")
				continue
			}
			feed.send(map[string]any{"type": "toggleRelay", "id": fields[1], "isOn": fields[2] == "on"})
		case "threshold":
			if len(fields) != 2 {
				fmt.Println("usage: threshold <amps>")
				continue
			}
			value, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				fmt.Printf("not a number: %s\n", fields[1])
				continue
			}
			threshold.Set(value)
		case "exit", "quit":
			return
		default:
			fmt.Printf("unknown command: %s\n", fields[0])
		}
	}
}

func show(feed *feedClient) {
	snapshot, connected := feed.latest()
	if !connected {
		fmt.Println("(not connected - showing last known state)")
	}
	state := snapshot.State

	onOff := func(isOn bool) string {
		if isOn {
			return "ON"
		}
		return "OFF"
	}

	fmt.Printf("%s [%s]  threshold %.2f A\n", state.Transformer.Name, onOff(state.Transformer.Relay.IsOn), state.SafetyThreshold)
	for _, dp := range state.DistributionPoints {
		marker := ""
		if dp.Overloaded(state.SafetyThreshold) {
			marker = "  OVERLOAD"
		}
		fmt.Printf("  %-6s %-10s %7.2f A  [%s]  houses: %d%s\n", dp.ID, dp.Name, dp.Current, onOff(dp.IsOn), dp.HousesConnected, marker)
	}
	for _, alert := range state.Alerts {
		fmt.Printf("  alert: %s\n", alert)
	}
}

func chart(feed *feedClient) {
	snapshot, _ := feed.latest()
	if len(snapshot.Chart) == 0 {
		fmt.Println("no chart data yet")
		return
	}
	for _, point := range snapshot.Chart {
		fmt.Printf("  %s  %6.2f A\n", point.Time.Format("15:04:05"), point.AverageCurrent)
	}
}
