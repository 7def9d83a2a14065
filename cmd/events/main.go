package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"voice-qa-be/pkg/events"
	pktNats "voice-qa-be/pkg/nats"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

// Tails the pipeline event stream, one colored line per event.
func main() {
	subject := flag.String("subject", pktNats.StreamSubjects, "subject filter, e.g. events.chat.item.failed")
	session := flag.String("session", "", "only show events of this session id")
	fromStart := flag.Bool("from-start", false, "replay events still retained in the stream")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}
	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	sub, err := pktNats.NewSubscriber(natsURL)
	if err != nil {
		color.Red("Failed to connect to NATS: %v", err)
		os.Exit(1)
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = sub.Subscribe(ctx, *subject, pktNats.SubscribeOptions{DeliverNew: !*fromStart}, func(ctx context.Context, event events.Event) error {
		payload := event.Payload()
		if *session != "" && payload["session_id"] != *session {
			return nil
		}
		printEvent(event)
		return nil
	})
	if err != nil {
		color.Red("Failed to subscribe: %v", err)
		os.Exit(1)
	}

	color.Cyan("Tailing %s on %s (ctrl-c to stop)", *subject, natsURL)
	<-ctx.Done()
}

func colorFor(eventType string) *color.Color {
	switch {
	case strings.HasSuffix(eventType, ".complete"):
		return color.New(color.FgGreen)
	case strings.HasSuffix(eventType, ".failed"):
		return color.New(color.FgRed, color.Bold)
	case eventType == events.HistoryClearedEvent:
		return color.New(color.FgMagenta)
	case strings.HasPrefix(eventType, events.ChatItemEventPrefix):
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}

func printEvent(event events.Event) {
	payload := event.Payload()
	keys := make([]string, 0, len(payload))
	for k := range payload {
		if k == events.EventTypePayloadKey || k == events.OccurredAtPayloadKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, payload[k])
	}

	colorFor(event.EventType()).Printf("%s %-24s", event.Timestamp().Format("15:04:05.000"), event.EventType())
	fmt.Println(b.String())
}
