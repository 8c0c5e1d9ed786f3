package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	bridgekit "github.com/glimte/bridgekit-go"
	"github.com/glimte/bridgekit-go/config"
	"github.com/glimte/bridgekit-go/contracts"
	"github.com/glimte/bridgekit-go/transports/httpx"
)

const cliService = "bridgekit_cli"

var errWaitNeedsKafka = errors.New("--wait needs the kafka broker")

func newInvokeCmd(flags *globalFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:     "invoke <service> <event> [json]",
		Short:   "Call an event over the sync bridge",
		Example: `  bridgekit invoke customer_service GET_PROFILE '{"id":"665f1c..."}'`,
		Args:    cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, cliService)
			if err != nil {
				return err
			}
			payload, err := payloadArg(args, 2)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client := httpx.NewClient(cfg.Hosts, cfg.InternalToken)
			res := client.Invoke(ctx, args[0], contracts.EventName(args[1]), payload)
			if err := printJSON(cmd.OutOrStdout(), res.Body); err != nil {
				return err
			}
			if res.IsError() {
				return fmt.Errorf("%s %s failed (status %d)", args[0], args[1], res.Status)
			}
			return nil
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "Request timeout")
	return cmd
}

func newPublishCmd(flags *globalFlags) *cobra.Command {
	var (
		wait    bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "publish <service> <event> [json]",
		Short: "Send an event over the configured broker",
		Long: `Sends one event to the service's queue (rabbitmq) or topic (kafka). With
--wait the record carries a correlation id and the reply is printed.`,
		Example: `  bridgekit publish customer_service PRODUCT_VIEWED '{"customerId":"c1","productId":"p1"}'
  bridgekit publish customer_service GET_PROFILE '{"id":"c1"}' --broker kafka --wait`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags, cliService)
			if err != nil {
				return err
			}
			payload, err := payloadArg(args, 2)
			if err != nil {
				return err
			}
			if wait && cfg.Broker != config.BrokerKafka {
				return errWaitNeedsKafka
			}
			cfg.Shutdown.SettleDelay = 0

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return publish(ctx, cmd.OutOrStdout(), cfg, args[0], contracts.EventName(args[1]), payload, wait)
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the correlated reply (kafka only)")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "Overall timeout")
	return cmd
}

func publish(ctx context.Context, out io.Writer, cfg *config.Config, service string, event contracts.EventName, payload json.RawMessage, wait bool) error {
	client, err := bridgekit.New(*cfg, bridgekit.WithExitFunc(func(int) {}))
	if err != nil {
		return err
	}
	defer func() {
		client.Shutdown("publish finished")
		_ = client.Store().Close()
		_ = client.Redis().Close()
	}()

	switch {
	case client.Queue() != nil:
		if err := client.Queue().Connect(ctx); err != nil {
			return err
		}
	case client.Log() != nil:
		if err := client.Log().ConnectProducer(ctx); err != nil {
			return err
		}
		if wait {
			reply, err := client.Log().ProduceAndWait(ctx, service, event, payload)
			if err != nil {
				return err
			}
			return printJSON(out, reply.Message)
		}
	}

	if err := client.Publish(ctx, service, event, payload); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "published %s to %s over %s\n", event, service, cfg.Broker)
	return err
}

func payloadArg(args []string, i int) (json.RawMessage, error) {
	if len(args) <= i {
		return json.RawMessage(`{}`), nil
	}
	raw := json.RawMessage(args[i])
	if string(raw) == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("payload is not valid JSON: %s", raw)
	}
	return raw, nil
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = fmt.Fprintf(w, "%s\n", raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
