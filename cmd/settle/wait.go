package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aponysus/settle/classify"
	"github.com/aponysus/settle/httpx"
	"github.com/aponysus/settle/metrics"
	"github.com/aponysus/settle/observe"
	"github.com/aponysus/settle/policy"
	"github.com/aponysus/settle/settle"
)

func newWaitCmd() *cobra.Command {
	var (
		preset      string
		header      string
		verbose     bool
		metricsAddr string
		classifier  string
	)

	cmd := &cobra.Command{
		Use:   "wait URL",
		Short: "Wait until an HTTP resource is ready",
		Long: `Poll URL until it answers 2xx (and, with --header, carries the given
header value) or the wait preset runs out.

Example usage:
  settle wait http://localhost:8080/healthz --preset long
  settle wait http://svc/jobs/7 --header X-State=done`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			presets, err := loadPresets(cmd)
			if err != nil {
				return err
			}
			spec, err := presets.Wait(preset)
			if err != nil {
				return err
			}

			observers := []observe.Observer{observe.NewLogObserver(logger)}
			if metricsAddr != "" {
				reg := prometheus.NewRegistry()
				observers = append(observers, metrics.Prometheus(reg).Observer())
				go serveMetrics(logger, metricsAddr, reg)
			}

			cls, err := classify.NewBuiltinRegistry().Lookup(classifier)
			if err != nil {
				return err
			}

			tk, err := settle.New(
				settle.WithPresets(presets),
				settle.WithObserver(observe.Multi(observers...)),
				settle.WithClassifier(cls),
			)
			if err != nil {
				return err
			}

			var check httpx.ResponseCheck
			if header != "" {
				key, value, ok := strings.Cut(header, "=")
				if !ok {
					return fmt.Errorf("invalid --header %q (want KEY=VALUE)", header)
				}
				check = httpx.HeaderEquals(key, value)
			}

			// No single request may outlive the whole wait.
			client := &http.Client{Timeout: spec.Timeout()}
			res := httpx.NewResource(args[0])
			cond := httpx.ResponseCondition("ready", client, check, httpx.WithResponseClassifier(cls))
			out, err := tk.WaitFor(cmd.Context(), res, preset, cond)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ready after %d attempts (%s)\n", args[0], out.Attempts, out.Elapsed)
			return nil
		},
	}
	cmd.Flags().StringVar(&preset, "preset", policy.PresetDefault, "Wait preset name")
	cmd.Flags().StringVar(&header, "header", "", "Required response header as KEY=VALUE")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every attempt")
	cmd.Flags().StringVar(&classifier, "classifier", classify.ClassifierHTTP, "Classifier for failed attempts: always, auto, http, signatures")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while waiting")
	return cmd
}

func serveMetrics(logger *slog.Logger, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "addr", addr, "error", err)
	}
}
