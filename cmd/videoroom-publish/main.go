package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	videoroom "github.com/Connect-Club/connectclub-videoroom-client"
)

type config struct {
	Gateway                string `mapstructure:"gateway"`
	Room                   string `mapstructure:"room"`
	Display                string `mapstructure:"display"`
	Pin                    string `mapstructure:"pin"`
	FilterDirectCandidates bool   `mapstructure:"filter_direct_candidates"`
}

func loadConfig(cmd *cobra.Command) (*config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("gateway", "ws://127.0.0.1:8188/")
	v.SetDefault("display", "publisher")
	v.SetDefault("filter_direct_candidates", false)

	if file := os.Getenv("VIDEOROOM_CONFIG"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	for key, flag := range map[string]string{
		"gateway":                  "gateway",
		"room":                     "room",
		"display":                  "display",
		"pin":                      "pin",
		"filter_direct_candidates": "filter-direct-candidates",
	} {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return nil, err
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// roomIdentifier keeps the room opaque: numeric for the common numeric
// room setup, string when the gateway is configured with string ids.
func roomIdentifier(room string) interface{} {
	if id, err := strconv.ParseInt(room, 10, 64); err == nil {
		return id
	}
	return room
}

var rootCmd = &cobra.Command{
	Use:          "videoroom-publish",
	Short:        "Join a videoroom as a publisher and print membership events",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().String("gateway", "ws://127.0.0.1:8188/", "gateway websocket address")
	rootCmd.Flags().String("room", "", "room identifier")
	rootCmd.Flags().String("display", "publisher", "display name")
	rootCmd.Flags().String("pin", "", "room pin")
	rootCmd.Flags().Bool("filter-direct-candidates", false, "strip host candidates from offers and answers")
}

func run(cmd *cobra.Command, args []string) error {
	log := logrus.WithField("component", "videoroom-publish")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Room == "" {
		return cmd.Help()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	session, err := videoroom.Connect(ctx, cfg.Gateway)
	if err != nil {
		return err
	}
	defer session.Close()

	handle, err := session.AttachVideoRoom(ctx)
	if err != nil {
		return err
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return err
	}
	defer func() { _ = pc.Close() }()
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendonly,
		}); err != nil {
			return err
		}
	}

	emitter := videoroom.NewCallbackEmitter(func(event string, payload interface{}) {
		log.Infof("%s: %v", event, payload)
	})
	emitter.Start()
	defer emitter.Stop()

	var opts []videoroom.PublisherOption
	if cfg.FilterDirectCandidates {
		opts = append(opts, videoroom.WithSDPFilter(videoroom.DirectCandidateFilter{}))
	}
	publisher := videoroom.NewPublisher(handle, videoroom.NewPionPeerSession(pc), emitter, opts...)
	handle.OnMessage(publisher.HandleMessage)

	publishers, err := publisher.JoinAndPublish(ctx, roomIdentifier(cfg.Room), cfg.Display, cfg.Pin, true, true)
	if err != nil {
		return err
	}
	memberId, _ := publisher.MemberId()
	log.Infof("joined room %s as member %d, %d publishers already in the room", cfg.Room, memberId, len(publishers))
	for _, p := range publishers {
		log.Infof("publisher %d (%s)", p.Id, p.Display)
	}

	<-ctx.Done()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
