package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/procrastihator/internal/config"
	"github.com/gyaneshwarpardhi/procrastihator/internal/packet"
	"github.com/gyaneshwarpardhi/procrastihator/internal/transport"
)

func newSendCmd(root *rootFlags) *cobra.Command {
	var pairs []string
	cmd := &cobra.Command{
		Use:   "send <EVENT>",
		Short: "Publish one detection packet to the room, as the vision client would",
		Example: `  procrastihator send PHONE_DETECTED --data confidence=0.91 --data label="cell phone"
  procrastihator send persona --name "Drill Sergeant" --description "Shouts a lot"
  procrastihator send session-start`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseData(pairs)
			if err != nil {
				return err
			}
			return publish(cmd.Context(), root, packet.New(strings.ToUpper(args[0]), data))
		},
	}
	cmd.Flags().StringArrayVar(&pairs, "data", nil, "payload field as key=value (repeatable)")

	cmd.AddCommand(newSendPersonaCmd(root), newSendSessionStartCmd(root))
	return cmd
}

func newSendPersonaCmd(root *rootFlags) *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Switch the agent's persona",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data := map[string]any{"personality": name}
			if description != "" {
				data["description"] = description
			}
			return publish(cmd.Context(), root, packet.New(packet.PersonalityUpdate, data))
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "persona name")
	cmd.Flags().StringVar(&description, "description", "", "character description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newSendSessionStartCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "session-start",
		Short: "Start a new session: clears the agent's incident memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return publish(cmd.Context(), root, packet.New(packet.SessionStart, nil))
		},
	}
}

// parseData turns key=value pairs into a payload. Numbers and booleans keep
// their type.
func parseData(pairs []string) (map[string]any, error) {
	data := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("--data %q: expected key=value", pair)
		}
		data[key] = parseValue(raw)
	}
	return data, nil
}

func parseValue(raw string) any {
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

// clientConfig reads the room settings. The CLI works without a config file.
func clientConfig(path string) (*config.AgentConfig, error) {
	if _, err := os.Stat(path); err != nil {
		cfg := &config.AgentConfig{Version: "v1"}
		config.ApplyDefaults(cfg)
		return cfg, nil
	}
	loader, err := config.NewLoader(path, slog.Default())
	if err != nil {
		return nil, err
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func publish(ctx context.Context, root *rootFlags, p *packet.Packet) error {
	cfg, err := clientConfig(root.configPath)
	if err != nil {
		return err
	}
	creds, err := config.LoadCredentials(root.envFile)
	if err != nil {
		return err
	}
	logger := slog.Default()
	conn, err := transport.Connect(creds.NATSURL, creds.NATSToken, cfg.Transport, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := transport.NewPublisher(conn, cfg.Transport).Send(ctx, p); err != nil {
		return err
	}
	if err := conn.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	fmt.Printf("sent %s id=%s subject=%s\n", p.Event, p.ID, cfg.Transport.DetectionSubject())
	return nil
}
