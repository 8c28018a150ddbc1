package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/morezero/void-worker/pkg/commsutil"
	"github.com/morezero/void-worker/pkg/multiplexer"
	"github.com/morezero/void-worker/pkg/protocol"
	"github.com/morezero/void-worker/pkg/transport"
)

var (
	callWebSocket string
	callSubject   string
	callCodec     string
	callTimeout   time.Duration
	callFirst     bool
	callNoCheck   bool
)

var callCmd = &cobra.Command{
	Use:   "call <command> [json-payload]",
	Short: "Invoke a worker command and print every result",
	Long: `Invoke a worker command over NATS (COMMS_URL) or, with --ws, over the
worker's WebSocket endpoint. Each result is printed as JSON as it arrives.
Streaming commands run until they complete or CTRL-C, which closes the call.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw string
		if len(args) > 1 {
			raw = args[1]
		}
		payload, err := parsePayload(raw)
		if err != nil {
			return err
		}
		codec, err := protocol.CodecByName(callCodec)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		if callTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, callTimeout)
			defer cancel()
		}

		conn, closeConn, err := dialWorker(ctx, codec)
		if err != nil {
			return err
		}
		defer closeConn()

		mux := multiplexer.New(conn)
		go mux.Run(context.Background())
		defer mux.Close()

		if !callNoCheck {
			info, err := mux.Handshake(ctx)
			if err != nil {
				return fmt.Errorf("handshake: %w", err)
			}
			fmt.Fprintln(os.Stderr, color.WhiteString("%s %s (%d commands)", info.Name, info.Version, len(info.Commands)))
		}
		return runCall(ctx, mux, args[0], payload, os.Stdout)
	},
}

func init() {
	callCmd.Flags().StringVar(&callWebSocket, "ws", "", "WebSocket endpoint, e.g. ws://localhost:8080/_void/rpc")
	callCmd.Flags().StringVar(&callSubject, "subject", "", "RPC subject (default RPC_SUBJECT or "+commsutil.SubjectWorkerRPC+")")
	callCmd.Flags().StringVar(&callCodec, "codec", "", "Envelope codec: json or cbor (default WIRE_CODEC)")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 0, "Give up after this long (0 waits until CTRL-C)")
	callCmd.Flags().BoolVar(&callFirst, "first", false, "Stop after the first result")
	callCmd.Flags().BoolVar(&callNoCheck, "no-check", false, "Skip the worker.info version check")
}

// dialWorker opens the client connection selected by flags and environment.
func dialWorker(ctx context.Context, codec protocol.Codec) (transport.Conn, func(), error) {
	if callWebSocket != "" {
		url := callWebSocket
		if callCodec != "" && !strings.Contains(url, "codec=") {
			sep := "?"
			if strings.Contains(url, "?") {
				sep = "&"
			}
			url += sep + "codec=" + codec.Name()
		}
		conn, err := transport.DialWebSocket(ctx, url, codec)
		if err != nil {
			return nil, nil, err
		}
		return conn, func() { conn.Close() }, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.COMMSURL == "" {
		return nil, nil, errors.New("COMMS_URL is required (or use --ws)")
	}
	if callCodec == "" {
		if codec, err = protocol.CodecByName(cfg.WireCodec); err != nil {
			return nil, nil, err
		}
	}
	subject := callSubject
	if subject == "" {
		subject = cfg.RPCSubject
	}
	if subject == "" {
		subject = commsutil.SubjectWorkerRPC
	}

	nc, err := commsutil.Connect(cfg.COMMSURL, "void-call")
	if err != nil {
		return nil, nil, err
	}
	conn, err := transport.DialNATS(nc, subject, codec)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return conn, func() {
		conn.Close()
		nc.Close()
	}, nil
}

// runCall prints each result of command to w until the call ends or ctx is done.
func runCall(ctx context.Context, mux *multiplexer.Multiplexer, command string, payload any, w io.Writer) error {
	call, err := mux.Call(ctx, command, payload)
	if err != nil {
		return err
	}
	defer call.Close()

	n := 0
	for call.Next(ctx) {
		n++
		text, err := formatValue(call.Value())
		if err != nil {
			return err
		}
		fmt.Fprintln(w, text)
		if callFirst {
			return nil
		}
	}
	if err := call.Err(); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			fmt.Fprintln(os.Stderr, color.YellowString("call closed after %d result(s)", n))
			return nil
		}
		return errors.New(color.RedString(err.Error()))
	}
	return nil
}

// parsePayload reads the optional JSON argument. Text that is not JSON is sent
// as a plain string.
func parsePayload(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
			return nil, fmt.Errorf("invalid JSON payload: %w", err)
		}
		return raw, nil
	}
	return v, nil
}

// formatValue renders a result as indented JSON.
func formatValue(v protocol.Value) (string, error) {
	var out any
	if err := v.Decode(&out); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format result: %w", err)
	}
	return string(data), nil
}
