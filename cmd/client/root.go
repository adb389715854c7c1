package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/teamvoice/internal/adapters/rtc"
	"github.com/dkeye/teamvoice/internal/adapters/wsclient"
	"github.com/dkeye/teamvoice/internal/client"
	"github.com/dkeye/teamvoice/internal/config"
	"github.com/dkeye/teamvoice/internal/domain"
)

var (
	flagRooms []string
	flagName  string
	flagMute  bool
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teamvoice-client --room <id> --name <display name>",
		Short: "Headless teamvoice participant",
		Long: `Joins one or more voice rooms and keeps a peer-to-peer audio link to every
other member. Audio is Opus silence; the client is meant for testing servers
and networks.

Examples:
  teamvoice-client --room standup --name bot
  teamvoice-client --room a --room b --name bot --mute`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE:          run,
	}
	f := cmd.Flags()
	f.StringSliceVar(&flagRooms, "room", nil, "room to join (repeatable)")
	f.StringVar(&flagName, "name", "", "display name")
	f.BoolVar(&flagMute, "mute", false, "join muted")
	f.String("server", "", "signaling websocket url")
	f.StringSlice("ice", nil, "STUN/TURN server urls")
	f.Duration("offer-delay", 0, "delay before the first offer")
	f.String("log-level", "", "log level")
	_ = cmd.MarkFlagRequired("room")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(cfg.Level())

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	transport, err := wsclient.Dial(ctx, cfg.Client.ServerURL)
	if err != nil {
		return err
	}
	defer transport.Close()

	factory, err := rtc.NewFactory(rtc.Config(cfg.Client.ICEServers))
	if err != nil {
		return err
	}

	c := client.New(client.Options{
		Transport:  transport,
		Media:      factory,
		Capture:    rtc.SilenceDevice{},
		Observer:   logObserver{},
		OfferDelay: cfg.Client.OfferDelay,
	})

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		if err := c.Run(runCtx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer stop()
		joined := make([]domain.RoomID, 0, len(flagRooms))
		for _, r := range flagRooms {
			room := domain.RoomID(r)
			if err := c.Join(ctx, room, flagName); err != nil {
				return err
			}
			joined = append(joined, room)
			if flagMute {
				if err := c.SetMuted(ctx, room, true); err != nil {
					return err
				}
			}
		}

		select {
		case <-ctx.Done():
		case <-c.Done():
			return nil
		}

		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer leaveCancel()
		for _, room := range joined {
			if err := c.Leave(leaveCtx, room); err != nil {
				log.Warn().Err(err).Str("room", string(room)).Msg("leave")
			}
		}
		return nil
	})
	return g.Wait()
}

type logObserver struct{}

func (logObserver) OnRoster(room domain.RoomID, participants []domain.Participant) {
	ev := log.Info().Str("module", "cli").Str("room", string(room)).Int("members", len(participants))
	for _, p := range participants {
		ev = ev.Bool(p.DisplayName+".muted", p.Muted)
	}
	ev.Msg("roster")
}

func (logObserver) OnLinkState(room domain.RoomID, remote domain.ConnectionID, state client.LinkState) {
	log.Info().Str("module", "cli").Str("room", string(room)).Str("remote", string(remote)).Str("state", state.String()).Msg("link")
}
