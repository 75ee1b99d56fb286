package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"market-pulse/src/client"
	"market-pulse/src/logger"
	"market-pulse/src/models"
)

// -----------------------------------------------------------------------------

func main() {
	url := flag.String("url", "ws://127.0.0.1:8080/ws", "server websocket url")
	symbols := flag.String("symbols", "", "comma separated symbols to follow")
	events := flag.String("events", "", "comma separated events to subscribe to")
	baseDelay := flag.Duration("base-delay", time.Second, "first reconnect delay")
	maxAttempts := flag.Int("max-attempts", 5, "reconnect attempts before giving up")
	logLevel := flag.String("log-level", "INFO", "log level")
	flag.Parse()

	log := logger.NewLoggerWithWriter(os.Stderr, *logLevel, "client")

	c := client.New(client.Options{
		URL:         *url,
		BaseDelay:   *baseDelay,
		MaxAttempts: *maxAttempts,
		Logger:      log,
	})

	c.OnFrame(func(event models.EventType, data []byte) {
		fmt.Printf("%s %s\n", event, data)
	})
	c.OnStateChange(func(s client.State) {
		log.Info("state: %s", s)
	})

	if err := c.Subscribe(splitList(*symbols), splitList(*events)); err != nil {
		log.Error("subscribe: %v", err)
	}

	if err := c.Connect(context.Background()); err != nil {
		log.Warning("initial connect failed, retrying: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	c.Disconnect()
}

// -----------------------------------------------------------------------------

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
