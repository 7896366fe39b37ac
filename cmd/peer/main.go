package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"peercall/internal/client"
)

func main() {
	server := flag.String("server", "ws://localhost:8080/api/ws/signal", "relay websocket URL")
	user := flag.String("user", "", "identifier to register as")
	stun := flag.String("stun", "stun:stun.l.google.com:19302", "STUN server")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if *user == "" {
		fmt.Fprintln(os.Stderr, "usage: peer -user <id> [-server <url>]")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := client.Dial(ctx, *server, client.Options{STUNServers: []string{*stun}})
	if err != nil {
		log.Fatal().Err(err).Msg("connect to relay")
	}

	c.OnRegistered = func(userID string) {
		fmt.Printf("registered as %q\n", userID)
	}
	c.OnIncomingCall = func(from string) {
		fmt.Printf("incoming call from %q — accept/reject?\n", from)
	}
	c.OnCallFailed = func(to, reason string) {
		fmt.Printf("call to %q failed: %s\n", to, reason)
	}
	c.OnCallEnded = func() {
		fmt.Println("call ended")
	}
	c.OnStateChange = func(from, to client.CallState) {
		fmt.Printf("state: %s -> %s\n", from, to)
	}
	c.OnError = func(reason string) {
		fmt.Printf("relay error: %s\n", reason)
	}

	go func() {
		if err := c.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("relay connection lost")
			cancel()
		}
	}()

	if err := c.Register(*user); err != nil {
		log.Fatal().Err(err).Msg("register")
	}

	go repl(ctx, cancel, c)

	<-ctx.Done()
	_ = c.Close()
}

func repl(ctx context.Context, cancel context.CancelFunc, c *client.Client) {
	fmt.Println("commands: call <id> | accept | reject | hangup | state | quit")
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "call":
			if len(fields) < 2 {
				fmt.Println("call <id>")
				continue
			}
			if err := c.Call(fields[1]); err != nil {
				fmt.Println("cannot call:", err)
			}
		case "accept":
			if err := c.Accept(); err != nil {
				fmt.Println("cannot accept:", err)
			}
		case "reject":
			if err := c.Reject(); err != nil {
				fmt.Println("cannot reject:", err)
			}
		case "hangup":
			c.Hangup()
		case "state":
			fmt.Println(c.State())
		case "quit":
			cancel()
			return
		default:
			fmt.Println("unknown command")
		}
	}
}
