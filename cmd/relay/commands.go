package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"retryrelay/internal/app"
	"retryrelay/internal/platform/httpclient"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "relay",
		Short:        "Retrying HTTP relay with scheduled upstream probes",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newFetchCmd(), newProbeCmd())
	return root
}

func withApp(fn func(cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := app.New()
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()
		return fn(cmd, a, args)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay API and the probe scheduler",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
			return a.Run(cmd.Context())
		}),
	}
}

type fetchFlags struct {
	method    string
	data      string
	headers   []string
	code      string
	retries   int
	interval  time.Duration
	timeout   time.Duration
	attempt   time.Duration
	rawData   bool
	rawResp   bool
	timestamp bool
}

func newFetchCmd() *cobra.Command {
	var f fetchFlags
	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Perform one request through the retry policy and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
			cfg, err := f.requestConfig(args[0], a.RetryOptions(), cmd)
			if err != nil {
				return err
			}
			resp, err := a.Client().Request(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"status": resp.Status, "data": resp.Payload()})
		}),
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.method, "method", "X", "GET", "HTTP method")
	fl.StringVarP(&f.data, "data", "d", "", "JSON payload, sent as query for GET")
	fl.StringArrayVarP(&f.headers, "header", "H", nil, "request header as Key:Value (repeatable)")
	fl.StringVar(&f.code, "code", "", "envelope code that marks success (default \"0\")")
	fl.IntVar(&f.retries, "retries", 0, "extra attempts after the first")
	fl.DurationVar(&f.interval, "interval", 0, "delay between attempts")
	fl.DurationVar(&f.timeout, "timeout", 0, "budget for all attempts")
	fl.DurationVar(&f.attempt, "attempt-timeout", 0, "budget for a single attempt")
	fl.BoolVar(&f.rawData, "raw-data", false, "return the whole envelope without checking its code")
	fl.BoolVar(&f.rawResp, "raw-response", false, "accept any 2xx response without decoding it")
	fl.BoolVar(&f.timestamp, "timestamp", false, "add a t parameter with the current unix milliseconds")
	return cmd
}

func (f fetchFlags) requestConfig(url string, defaults httpclient.RetryOptions, cmd *cobra.Command) (httpclient.RequestConfig, error) {
	opts := defaults
	fl := cmd.Flags()
	if fl.Changed("retries") {
		opts.RetryTimes = f.retries
	}
	if fl.Changed("interval") {
		opts.RetryInterval = f.interval
	}
	if fl.Changed("timeout") {
		opts.Timeout = f.timeout
	}

	cfg := httpclient.RequestConfig{
		URL:            url,
		Method:         f.method,
		Code:           f.code,
		Timeout:        f.attempt,
		UseRawData:     f.rawData,
		UseRawResponse: f.rawResp,
		WithTimestamp:  f.timestamp,
		Retry:          &opts,
	}
	if f.data != "" {
		var data any
		if err := json.Unmarshal([]byte(f.data), &data); err != nil {
			return cfg, fmt.Errorf("--data: %w", err)
		}
		cfg.Data = data
	}
	for _, h := range f.headers {
		k, v, ok := strings.Cut(h, ":")
		if !ok {
			return cfg, fmt.Errorf("--header %q: want Key:Value", h)
		}
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		cfg.Headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return cfg, nil
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Probe the configured PROBE_URLS once and print the outcome",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app.App, _ []string) error {
			if len(a.Config().Probe.URLs) == 0 {
				return fmt.Errorf("no probe targets: set PROBE_URLS")
			}
			results, err := a.ProbeOnce(cmd.Context())
			if perr := printJSON(cmd.OutOrStdout(), results); perr != nil {
				return perr
			}
			return err
		}),
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
