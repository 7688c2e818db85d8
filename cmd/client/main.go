package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/roomcast/roomcast/internal/client"
)

var (
	serverURL string
	roomID    string
	userName  string
	stunURL   string
	noAudio   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roomcast",
	Short: "Headless roomcast client: joins a room and negotiates peer connections",
}

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room and keep the session open until interrupted",
	RunE:  runJoin,
}

func init() {
	joinCmd.Flags().StringVarP(&serverURL, "server", "s", "ws://localhost:8080/api/ws/signal", "signaling server URL")
	joinCmd.Flags().StringVarP(&roomID, "room", "r", "main", "room to join")
	joinCmd.Flags().StringVarP(&userName, "name", "n", "guest", "display name sent to other participants")
	joinCmd.Flags().StringVar(&stunURL, "stun", "stun:stun.l.google.com:19302", "STUN server URL")
	joinCmd.Flags().BoolVar(&noAudio, "no-audio", false, "start with audio disabled")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	user, err := json.Marshal(map[string]string{
		"id":   uuid.NewString(),
		"name": userName,
	})
	if err != nil {
		return err
	}

	link, err := client.Dial(ctx, serverURL)
	if err != nil {
		return err
	}
	defer link.Close()

	rtcConfig := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{stunURL}}},
	}
	sess := client.NewSession(client.SessionOptions{
		Sender:  link,
		Dial:    client.PionDialer(rtcConfig),
		Context: ctx,
	})

	if err := sess.Join(roomID, user); err != nil {
		return fmt.Errorf("join %q: %w", roomID, err)
	}
	if noAudio {
		sess.ToggleAudio()
	}
	if cap := sess.Capture(); cap != nil {
		go client.PumpSilence(ctx, cap)
	}
	log.Info().Str("room", roomID).Str("server", serverURL).Msg("joined, waiting for peers")

	errc := make(chan error, 1)
	go func() { errc <- link.Run(ctx, sess) }()

	select {
	case <-ctx.Done():
		sess.Leave()
		return nil
	case err := <-errc:
		sess.Leave()
		return err
	}
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("client exited with error")
		os.Exit(1)
	}
}
