package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hendrywilliam/siren/src/config"
	"github.com/hendrywilliam/siren/src/logging"
	"github.com/hendrywilliam/siren/src/server"
	"github.com/hendrywilliam/siren/src/websocket"
)

var signals = []os.Signal{
	os.Interrupt,
	syscall.SIGINT,
	syscall.SIGTERM,
}

func main() {
	configPath := flag.String("config", "", "path to a TOML or YAML config file")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to load env file", "error", err)
		os.Exit(1)
	}
	cfg, err := config.LoadConfiguration(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	log := logging.New(os.Stderr, cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), signals...)
	defer stop()

	opts := cfg.SessionOptions(log)
	opts.OnMessage = func(_ *websocket.Session, msg websocket.Message) {
		fmt.Fprintln(os.Stdout, msg.String())
	}
	opts.OnError = func(s *websocket.Session, err error) {
		log.Warn("transport error", "session_id", s.ID(), "error", err)
	}
	if opts.AutoReconnect != nil {
		opts.AutoReconnect.OnFailed = func() {
			log.Error("giving up after reconnect attempts", "retries", cfg.Reconnect.Retries)
			stop()
		}
	}
	sess := websocket.New(ctx, cfg.URL, opts)

	go forwardLines(ctx, os.Stdin, sess, log)

	if cfg.APIAddr != "" {
		api := server.NewServer(server.Arguments{
			Session: sess,
			Token:   cfg.APIToken,
			Logger:  log,
		})
		go func() {
			if err := api.StartServer(ctx, cfg.APIAddr); err != nil {
				log.Error("control api failed", "error", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	waitClosed(sess, 2*time.Second)
}

// forwardLines sends every line read from r as a text message. Lines sent
// before the session is open are buffered.
func forwardLines(ctx context.Context, r io.Reader, sess *websocket.Session, log *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		sess.SendText(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		log.Warn("stdin read failed", "error", err)
		return
	}
	log.Debug("stdin closed")
}

func waitClosed(sess *websocket.Session, timeout time.Duration) {
	done := make(chan struct{}, 1)
	notify := func(s websocket.Status) {
		if s == websocket.StatusClosed {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	}
	unsubscribe := sess.Status().AddListener(notify)
	defer unsubscribe()
	notify(sess.Status().Value())
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
