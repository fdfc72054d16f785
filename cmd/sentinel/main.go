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
	"time"

	"github.com/jessevdk/go-flags"

	"sentinel/api"
	"sentinel/chat"
	"sentinel/config"
	"sentinel/crypto"
	"sentinel/logger"
	"sentinel/models"
	"sentinel/storage"
)

var opts struct {
	ServerURL string `long:"server-url" env:"SENTINEL_SERVER_URL" description:"backend base url (overrides config)"`
	Token     string `long:"token" env:"SENTINEL_TOKEN" description:"bearer token (overrides config)"`
	Channel   string `long:"channel" env:"SENTINEL_CHANNEL" description:"initial channel (overrides config)"`
	AutoReply bool   `long:"auto-reply" env:"SENTINEL_AUTO_REPLY" description:"synthesize canned counterpart replies"`
}

var Revision = "dev"

func main() {
	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	log := logger.NewLogger()
	log.Info("starting sentinel", "revision", Revision)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, cfgPath, err := config.LoadOrCreate()
	if err != nil {
		log.Error("loading config", "error", err)
		os.Exit(1)
	}
	log.Info("config loaded", "path", cfgPath)

	if opts.ServerURL != "" {
		cfg.ServerURL = opts.ServerURL
	}
	if opts.Token != "" {
		cfg.Token = opts.Token
	}
	if opts.Channel != "" {
		cfg.InitialChannel = opts.Channel
	}
	if opts.AutoReply {
		cfg.AutoReply = true
	}

	dataDir, err := config.ResolveDataDir()
	if err != nil {
		log.Error("resolving data directory", "error", err)
		os.Exit(1)
	}

	store, dbPath, err := storage.Open(dataDir)
	if err != nil {
		log.Error("opening archive database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("closing archive database", "error", err)
		}
	}()
	log.Info("archive ready", "path", dbPath)

	key, err := crypto.EnsureArchiveKey(cfg.ArchiveKeyPath)
	if err != nil {
		log.Error("loading archive key", "error", err)
		os.Exit(1)
	}

	session, err := chat.NewSession(chat.Options{
		Log:            log,
		Client:         api.NewClient(cfg.ServerURL, cfg.Token),
		Archiver:       storage.NewArchiver(store, key),
		InitialChannel: cfg.InitialChannel,
		PollInterval:   time.Duration(cfg.PollIntervalSeconds) * time.Second,
		ScanDelay:      time.Duration(cfg.ScanDelayMillis) * time.Millisecond,
		AutoReply:      cfg.AutoReply,
		OnUnauthorized: func() {
			log.Error("session expired, re-authentication required")
			cancel()
		},
	})
	if err != nil {
		log.Error("creating session", "error", err)
		os.Exit(1)
	}

	if err := session.Start(); err != nil {
		log.Error("starting session", "error", err)
		os.Exit(1)
	}
	defer session.Close()

	go renderEvents(session)
	go readCommands(ctx, cancel, log, session, standingChannels(cfg.Channels))

	<-ctx.Done()
	log.Info("stopping sentinel")
}

func renderEvents(session *chat.Session) {
	for event := range session.Events() {
		if len(event.Messages) == 0 {
			continue
		}
		last := event.Messages[len(event.Messages)-1]
		fmt.Printf("[%s] %s %s: %s\n",
			event.ChannelID,
			statusMark(last),
			last.Sender,
			renderText(last),
		)
	}
}

func statusMark(msg models.Message) string {
	switch msg.Status {
	case models.StatusScanning:
		return "~"
	case models.StatusBlocked:
		return "x"
	default:
		return "+"
	}
}

func renderText(msg models.Message) string {
	if msg.Status == models.StatusBlocked && msg.Risk != nil {
		return fmt.Sprintf("[BLOCKED] %s", msg.Risk.Explanation)
	}
	if msg.Text == "" && msg.HasAttachment() {
		return fmt.Sprintf("[file: %s]", msg.Attachment.Name)
	}
	if msg.Fingerprint != "" {
		return fmt.Sprintf("%s  (fp %s)", msg.Text, crypto.FormatFingerprint(msg.Fingerprint))
	}
	return msg.Text
}

func standingChannels(names []string) []models.Channel {
	channels := make([]models.Channel, 0, len(names))
	for _, name := range names {
		channels = append(channels, models.Channel{ID: name, Name: name, Status: "SECURE"})
	}
	return channels
}

// readCommands drives the session from stdin: /channel and /dm switch
// conversations, /ttl arms self-destruct for subsequent sends,
// /channels and /dms list known destinations, anything else is
// submitted as a message.
func readCommands(ctx context.Context, cancel context.CancelFunc, log logger.Logger, session *chat.Session, channels []models.Channel) {
	var ttl *int

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			cancel()
			return

		case line == "/channels":
			for _, channel := range channels {
				fmt.Printf("  %s  %s (%s)\n", channel.ID, channel.Name, channel.Status)
			}

		case line == "/dms":
			for _, binding := range session.DMs() {
				fmt.Printf("  %s  %s (%s)\n", binding.ChannelID, binding.Name, binding.Status)
			}

		case strings.HasPrefix(line, "/channel "):
			channelID := strings.TrimSpace(strings.TrimPrefix(line, "/channel "))
			if err := session.SwitchChannel(channelID); err != nil {
				log.Error("switching channel", "channel", channelID, "error", err)
			}

		case strings.HasPrefix(line, "/dm "):
			identifier := strings.TrimSpace(strings.TrimPrefix(line, "/dm "))
			binding, err := session.StartDM(ctx, identifier)
			if err != nil {
				log.Error("starting dm", "identifier", identifier, "error", err)
				continue
			}
			fmt.Printf("secure channel with %s ready\n", binding.Name)

		case strings.HasPrefix(line, "/ttl "):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "/ttl "))
			seconds, err := strconv.Atoi(raw)
			if err != nil || seconds < 0 {
				log.Error("invalid ttl", "value", raw)
				continue
			}
			if seconds == 0 {
				ttl = nil
				fmt.Println("self-destruct disabled")
				continue
			}
			ttl = &seconds
			fmt.Printf("self-destruct armed: %ds\n", seconds)

		default:
			if _, err := session.Submit(chat.SubmitRequest{Text: line, TTLSeconds: ttl}); err != nil {
				log.Error("submitting message", "error", err)
			}
		}
	}
}
