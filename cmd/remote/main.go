package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/polite-concession/internal/agent"
	"github.com/freeeve/polite-concession/internal/client"
	"github.com/freeeve/polite-concession/internal/model"
)

func main() {
	url := flag.String("url", "http://localhost:8009", "server base URL")
	name := flag.String("name", "remote", "dev login name")
	kind := flag.String("party", agent.KindBoulware, "party kind played against the server's agent")
	params := flag.String("params", "", "party parameter overrides (e.g. e=0.5)")
	scenario := flag.String("scenario", "laptop", "built-in scenario")
	agentSide := flag.String("agent-side", model.SideA, "side the server's agent plays")
	rounds := flag.Int("rounds", 0, "round deadline (0 = server default)")
	seed := flag.Int64("seed", 0, "seed for random parties (0 = random)")
	watch := flag.Bool("watch", false, "log session events from the WebSocket feed")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	p, err := agent.ParseParams(*params)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -params")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Received shutdown signal")
		cancel()
	}()

	c := client.New(*name, *url)
	if err := c.Login(ctx); err != nil {
		log.Fatal().Err(err).Msg("Login failed")
	}

	player := client.NewPlayer(c, *kind, p, *seed)
	if *watch {
		if err := c.ConnectWS(); err != nil {
			log.Fatal().Err(err).Msg("WebSocket connect failed")
		}
		defer c.CloseWS()
		go func() {
			for e := range c.Events() {
				log.Info().Str("type", e.Type).Str("sessionId", e.SessionID).RawJSON("data", e.Data).Msg("Event")
			}
		}()
		player.Created = func(s *model.Session) {
			if err := c.Subscribe(s.ID); err != nil {
				log.Warn().Err(err).Str("sessionId", s.ID).Msg("Subscribe failed")
			}
		}
	}

	sess, err := player.Play(ctx, client.CreateSessionRequest{
		Scenario:  *scenario,
		AgentSide: *agentSide,
		MaxRounds: *rounds,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Session failed")
	}
	log.Info().Str("sessionId", sess.ID).Str("status", sess.Status).Int("rounds", sess.Rounds).
		Float64("utilityA", sess.UtilityA).Float64("utilityB", sess.UtilityB).
		Str("acceptedBy", sess.AcceptedBy).Msg("Session finished")
}
