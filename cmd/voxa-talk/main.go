// Command voxa-talk holds a live voice conversation with a Voxa agent from
// the terminal: system microphone up, agent speech out the system speaker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/voxa-ai/voxa-go/pkg/core/pcm"
	"github.com/voxa-ai/voxa-go/pkg/core/playback"
	voxa "github.com/voxa-ai/voxa-go/sdk"
)

const defaultSettings = `{"agent":{"listen":{"model":"default"},"speak":{"model":"default"}}}`

type options struct {
	server       string
	key          string
	settings     string
	settingsFile string
	idleTimeout  time.Duration
	noSpeaker    bool
	verbose      bool
	envFile      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "voxa-talk:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opt options

	cmd := &cobra.Command{
		Use:   "voxa-talk",
		Short: "Talk to a Voxa voice agent from the terminal",
		Long: `voxa-talk opens a live session against a Voxa agent service: microphone
audio streams up a websocket, agent speech and control messages stream back.
The session ends on Ctrl-C, or on its own after the configured quiet period.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Godotenv never overrides variables already in the environment.
			if err := godotenv.Load(opt.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if strings.TrimSpace(opt.key) == "" {
				opt.key = strings.TrimSpace(os.Getenv("VOXA_API_KEY"))
			}
			if strings.TrimSpace(opt.server) == "" {
				opt.server = strings.TrimSpace(os.Getenv("VOXA_SERVER_URL"))
			}
			return run(cmd.Context(), opt)
		},
	}

	cmd.Flags().StringVar(&opt.server, "server", "", "agent service URL (ws(s):// or http(s)://; also reads VOXA_SERVER_URL)")
	cmd.Flags().StringVar(&opt.key, "key", "", "API key sent as a bearer token (also reads VOXA_API_KEY)")
	cmd.Flags().StringVar(&opt.settings, "settings", "", "session settings as inline JSON")
	cmd.Flags().StringVar(&opt.settingsFile, "settings-file", "", "session settings read from a JSON file")
	cmd.Flags().DurationVar(&opt.idleTimeout, "idle-timeout", 10*time.Second, "quiet period before the session disconnects itself")
	cmd.Flags().BoolVar(&opt.noSpeaker, "no-speaker", false, "do not open the system speaker; agent audio is still scheduled and metered")
	cmd.Flags().BoolVarP(&opt.verbose, "verbose", "v", false, "debug logging")
	cmd.Flags().StringVar(&opt.envFile, "env-file", ".env", "dotenv file loaded before reading environment variables")

	return cmd
}

func loadSettings(opt options) ([]byte, error) {
	switch {
	case strings.TrimSpace(opt.settings) != "":
		return []byte(opt.settings), nil
	case strings.TrimSpace(opt.settingsFile) != "":
		data, err := os.ReadFile(opt.settingsFile)
		if err != nil {
			return nil, fmt.Errorf("read settings file: %w", err)
		}
		return data, nil
	default:
		return []byte(defaultSettings), nil
	}
}

func run(ctx context.Context, opt options) error {
	level := slog.LevelInfo
	if opt.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	settings, err := loadSettings(opt)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink playback.Sink
	if !opt.noSpeaker {
		speaker, speakerErr := playback.NewOtoSink(pcm.DefaultPlaybackConfig())
		if speakerErr != nil {
			return speakerErr
		}
		defer speaker.Close()
		sink = speaker
	}

	session := voxa.NewSession(
		voxa.WithKey(opt.key),
		voxa.WithServerURL(opt.server),
		voxa.WithSettings(settings),
		voxa.WithIdleTimeout(opt.idleTimeout),
		voxa.WithSink(sink),
		voxa.WithLogger(logger),
	)
	defer session.Close()

	if err := session.Connect(ctx); err != nil {
		return err
	}
	fmt.Println("connected; speak into the microphone (Ctrl-C to hang up)")

	for {
		select {
		case <-ctx.Done():
			return session.Disconnect(context.Background(), "interrupted")
		case ev := <-session.Events():
			if done := printEvent(logger, ev); done {
				return nil
			}
		}
	}
}

// printEvent renders one session event and reports whether the session is
// over.
func printEvent(logger *slog.Logger, ev voxa.Event) bool {
	switch e := ev.(type) {
	case voxa.OpenEvent:
		logger.Info("session open")
	case voxa.CloseEvent:
		fmt.Printf("session closed (%d): %s\n", e.Code, e.Reason)
		return true
	case voxa.ErrorEvent:
		if e.Err.IsFatal() {
			fmt.Fprintln(os.Stderr, "fatal:", e.Err)
			return true
		}
		logger.Warn("session error", "variant", e.Err.Variant, "message", e.Err.Message)
	case voxa.StructuredMessageEvent:
		printAgentMessage(e)
	case voxa.ClientMessageEvent:
		logger.Debug("client message sent", "fields", e.Fields)
	case voxa.StatusChangedEvent:
		logger.Debug("status changed", "status", e.Status)
	}
	return false
}

func printAgentMessage(e voxa.StructuredMessageEvent) {
	switch e.Type {
	case "UserStartedSpeaking":
		fmt.Println("[you are speaking]")
	case "AgentStartedSpeaking":
		fmt.Println("[agent is speaking]")
	case "EndOfThought", "AgentAudioDone":
		// Quiet turn boundaries.
	default:
		if text, ok := e.Fields["text"].(string); ok && text != "" {
			fmt.Printf("%s: %s\n", e.Type, text)
			return
		}
		compact, err := json.Marshal(e.Fields)
		if err != nil {
			return
		}
		fmt.Printf("%s: %s\n", e.Type, compact)
	}
}
