package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/openant/ant/pkg/ant/config"
	"github.com/openant/ant/pkg/ant/engine"
	"github.com/openant/ant/pkg/ant/message"
	"github.com/openant/ant/pkg/ant/session"
	"github.com/openant/ant/pkg/ant/status"
	"github.com/openant/ant/pkg/ant/transport"
	"golang.org/x/sync/errgroup"
)

const (
	playbackReadSize  = 4096
	playbackReadDelay = time.Millisecond * 16
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	configFile := flag.String("config", "antscan.yaml", "YAML config file")

	flag.Parse()
	if configFile == nil {
		flag.Usage()
		os.Exit(1)
	}

	configContents, err := os.ReadFile(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error reading config file")
	}
	var opts config.Config
	if err := yaml.Unmarshal(configContents, &opts); err != nil {
		log.Fatal().Err(err).Msg("error unmarshaling yaml file")
	}

	if opts.PlaybackLocation != "" {
		opts.Device = "file"
	}

	var tr transport.Transport

	switch opts.Device {
	case "file":
		log.Info().Str("device", "file").Msg("opening capture playback...")
		delay := opts.PlaybackDelay
		if delay == 0 {
			delay = playbackReadDelay
		}
		tr, err = transport.NewFileTransport(opts.PlaybackLocation, playbackReadSize, delay)
		if err != nil {
			log.Fatal().Str("device", "file").Err(err).Msg("failed to open capture file")
		}
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	default:
		log.Info().Str("device", "serial").Str("port", opts.SerialPort).Msg("claiming stick...")
		tr, err = transport.OpenSerial(opts.SerialPort, opts.BaudRate)
		if err != nil {
			log.Fatal().Str("device", "serial").Err(err).Msg("failed to open serial port")
		}
	}

	sessionOpts := []session.Option{session.WithLogger(log.Logger)}
	if opts.InfluxDB.Host != "" {
		writeAPI := influxdb2.NewClient(opts.InfluxDB.Host, "").
			WriteAPI(opts.InfluxDB.Organization, opts.InfluxDB.Bucket)
		sessionOpts = append(sessionOpts,
			session.WithEngineOptions(engine.WithInfluxDB(writeAPI)))
	}

	sess, err := session.New(tr, sessionOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create session")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		cancel()
		sess.Stop()
	}()

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return sess.Run(ctx)
	})

	if opts.StatusServer.Port > 0 {
		statusServer := status.NewServer(opts.StatusServer.Port, sess.Engine())
		eg.Go(func() error {
			return statusServer.Run(ctx)
		})
	}

	if opts.Device != "file" {
		eg.Go(func() error {
			return configureChannels(sess, &opts)
		})
	}

	eg.Go(func() error {
		return printEvents(ctx, sess)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("exited with error")
	}
}

func configureChannels(sess *session.Session, opts *config.Config) error {
	if _, err := sess.ResetSystem(); err != nil {
		return err
	}
	key, err := opts.Key()
	if err != nil {
		return err
	}
	if key != nil {
		if err := sess.SetNetworkKey(0, key); err != nil {
			return err
		}
	}
	for _, ch := range opts.Channels {
		log.Info().Uint8("channel", ch.Number).Msg("configuring channel")
		if err := sess.AssignChannel(ch.Number, ch.Type, ch.Network); err != nil {
			return err
		}
		if err := sess.SetChannelID(ch.Number, ch.DeviceNumber, ch.DeviceType, ch.TransmissionType); err != nil {
			return err
		}
		if ch.Period > 0 {
			if err := sess.SetChannelPeriod(ch.Number, ch.Period); err != nil {
				return err
			}
		}
		if ch.RFFreq > 0 {
			if err := sess.SetChannelRFFreq(ch.Number, ch.RFFreq); err != nil {
				return err
			}
		}
		if ch.SearchTimeout > 0 {
			if err := sess.SetChannelSearchTimeout(ch.Number, ch.SearchTimeout); err != nil {
				return err
			}
		}
		if err := sess.OpenChannel(ch.Number); err != nil {
			return err
		}
		log.Info().Uint8("channel", ch.Number).Msg("channel open")
	}
	return nil
}

func printEvents(ctx context.Context, sess *session.Session) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		event, err := sess.NextEvent()
		if errors.Is(err, session.ErrTimeout) {
			continue
		}
		if err != nil {
			return err
		}
		switch event.Code {
		case message.EventRxBroadcast:
			log.Info().Uint8("channel", event.Channel).Hex("data", event.Data).Msg("broadcast")
		case message.EventRxAcknowledged:
			log.Info().Uint8("channel", event.Channel).Hex("data", event.Data).Msg("acknowledged data")
		case message.EventRxBurstPacket:
			log.Info().Uint8("channel", event.Channel).Int("bytes", len(event.Data)).Msg("burst complete")
		default:
			log.Info().Uint8("channel", event.Channel).Stringer("code", event.Code).
				Hex("data", event.Data).Msg("channel event")
		}
	}
}
