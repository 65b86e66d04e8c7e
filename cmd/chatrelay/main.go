package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"chatrelay/internal/archive"
	"chatrelay/internal/client"
	"chatrelay/internal/config"
	"chatrelay/internal/logger"
	"chatrelay/internal/transport"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Local .env is optional; deployment environments set variables directly.
	_ = godotenv.Load()

	cfg := config.LoadWithPrecedence(os.Getenv("CHATRELAY_CONFIG_FILE"))
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(cfg.Log.Level)
	defer func() { _ = log.Sync() }()

	credential := os.Getenv("CHATRELAY_TOKEN")

	var recorder interfaces.Recorder
	if cfg.Archive.Path != "" {
		rec, err := archive.NewSQLiteRecorder(cfg.Archive.Path, log)
		if err != nil {
			return fmt.Errorf("failed to open transcript archive: %w", err)
		}
		defer func() { _ = rec.Close() }()
		recorder = rec
	}

	tr := transport.NewAuto(transport.Config{
		URL:               cfg.Gateway.URL,
		Token:             credential,
		HandshakeTimeout:  cfg.Gateway.HandshakeTimeout,
		WriteTimeout:      cfg.Gateway.WriteTimeout,
		ReadTimeout:       cfg.Gateway.ReadTimeout,
		PingInterval:      cfg.Gateway.PingInterval,
		ReconnectAttempts: cfg.Gateway.ReconnectAttempts,
		ReconnectDelay:    cfg.Gateway.ReconnectDelay,
	}, log)

	c := client.New(tr, client.Options{
		Credential:  credential,
		Recorder:    recorder,
		JoinTimeout: cfg.Gateway.JoinTimeout,
		Logger:      log,
		OnNotification: func(n types.Notification) {
			fmt.Printf("\n[notification] %s (session %d): %s\n> ", n.GuestName, n.SessionID, n.Body)
		},
	})
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start chat client: %w", err)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	lineCh := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lineCh <- scanner.Text()
		}
		close(lineCh)
	}()

	fmt.Println("chatrelay console: sessions | join <id> | send <id> <text> | status | quit")
	fmt.Print("> ")

	for {
		select {
		case sig := <-signalCh:
			log.Info("shutting down", zap.String("signal", sig.String()))
			return nil

		case line, ok := <-lineCh:
			if !ok {
				return nil
			}
			if quit := dispatch(c, line); quit {
				return nil
			}
			fmt.Print("> ")
		}
	}
}

// dispatch runs one console command; returns true on quit.
func dispatch(c *client.Client, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit":
		return true

	case "sessions":
		c.FetchSessions()
		printSessions(c.Snapshot())

	case "join":
		id, err := parseID(fields)
		if err != nil {
			fmt.Println(err)
			return false
		}
		c.JoinSession(id)
		printMessages(c.Snapshot())

	case "send":
		if len(fields) < 3 {
			fmt.Println("usage: send <id> <text>")
			return false
		}
		id, err := parseID(fields)
		if err != nil {
			fmt.Println(err)
			return false
		}
		c.SendMessage(id, strings.Join(fields[2:], " "))
		if msg := c.Err(); msg != "" {
			fmt.Println("error:", msg)
		}

	case "status":
		snap := c.Snapshot()
		fmt.Printf("connected=%v active=%d sessions=%d messages=%d err=%q\n",
			snap.Connected, snap.ActiveSessionID, len(snap.Sessions), len(snap.Messages), snap.Err)

	default:
		fmt.Println("unknown command:", fields[0])
	}
	return false
}

func parseID(fields []string) (int, error) {
	if len(fields) < 2 {
		return 0, fmt.Errorf("usage: %s <id>", fields[0])
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("invalid session id %q", fields[1])
	}
	return id, nil
}

func printSessions(snap client.Snapshot) {
	if snap.LoadingSessions {
		fmt.Println("(roster refresh in flight)")
	}
	for _, s := range snap.Sessions {
		fmt.Printf("  #%d %s [%s]\n", s.ID, s.Name, s.Status)
	}
}

func printMessages(snap client.Snapshot) {
	if snap.LoadingMessages {
		fmt.Println("(loading messages...)")
		return
	}
	for _, m := range snap.Messages {
		fmt.Printf("  [%s] %s\n", m.Sender, m.Body)
	}
}
