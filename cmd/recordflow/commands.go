package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/recordflow/internal/pipeline"
	"github.com/ajitpratap0/recordflow/pkg/config"
	"github.com/ajitpratap0/recordflow/pkg/controller"
	"github.com/ajitpratap0/recordflow/pkg/logger"
	"github.com/ajitpratap0/recordflow/pkg/observability"
	"github.com/ajitpratap0/recordflow/pkg/processor"
	"github.com/ajitpratap0/recordflow/pkg/serializer"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "recordflow v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered controller service and processor classes",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Controller services:")
			for _, class := range controller.DefaultCatalog().List() {
				fmt.Fprintf(out, "  - %s\n", class)
			}
			fmt.Fprintln(out, "\nProcessors:")
			for _, class := range processor.DefaultCatalog().List() {
				fmt.Fprintf(out, "  - %s\n", class)
			}
		},
	}
}

func newValidateCmd() *cobra.Command {
	var jobFile string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load a job file and initialize every stream without processing records",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := config.LoadJob(jobFile)
			if err != nil {
				return err
			}
			p, err := pipeline.New(job)
			if err != nil {
				return err
			}
			defer closePipeline(p)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "job %s is valid\n", job.Name)
			for _, s := range p.Streams() {
				fmt.Fprintf(out, "  stream %s (batch size %d)\n", s.Name(), s.BatchSize())
				for _, id := range s.Processors() {
					fmt.Fprintf(out, "    - %s\n", id)
				}
			}
			if failed := p.Registry().ResolveAll(); len(failed) > 0 {
				return fmt.Errorf("controller services could not be resolved: %v", failed)
			}
			fmt.Fprintf(out, "  services: %v\n", p.Registry().Initialized())
			return nil
		},
	}
	cmd.Flags().StringVarP(&jobFile, "job", "j", "", "Path to the job file (required)")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

type runOptions struct {
	jobFile     string
	stream      string
	input       string
	output      string
	format      string
	compression string
	timeout     time.Duration
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run records through a stream of a job",
		Long: `Run reads records from --input, processes them with one stream of the job
and writes the result to --output.

Example:
  recordflow run --job job.yml --stream main --input records.jsonl --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, v, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.jobFile, "job", "j", "", "Path to the job file (required)")
	cmd.Flags().StringVarP(&opts.stream, "stream", "s", "", "Stream to run; defaults to the first stream")
	cmd.Flags().StringVarP(&opts.input, "input", "i", "-", "Input file, - for stdin")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "-", "Output file, - for stdout")
	cmd.Flags().StringVarP(&opts.format, "format", "f", serializer.FormatJSON, "Record format (json, avro)")
	cmd.Flags().StringVar(&opts.compression, "compression", "none", "Compression of input and output (none, gzip, snappy, lz4, zstd, s2, deflate)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Abort the run after this long; 0 disables")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func run(ctx context.Context, v *viper.Viper, opts runOptions, stdin io.Reader, stdout io.Writer) error {
	log := logger.With(zap.String("component", "recordflow-cli"))

	if addr := v.GetString(keyMetricsAddr); addr != "" {
		srv := serveMetrics(addr, log)
		defer srv.Close()
	}
	if v.GetBool(keyTracing) {
		cfg := observability.DefaultTracingConfig()
		cfg.ServiceVersion = version
		cfg.SamplingRate = v.GetFloat64(keyTraceRate)
		shutdown, err := observability.Init(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.Warn("failed to flush spans", zap.Error(err))
			}
		}()
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	name := opts.format
	if opts.compression != "" && opts.compression != "none" {
		name += "+" + opts.compression
	}
	codec, err := serializer.New(name)
	if err != nil {
		return err
	}

	job, err := config.LoadJob(opts.jobFile)
	if err != nil {
		return err
	}
	p, err := pipeline.New(job)
	if err != nil {
		return err
	}
	defer closePipeline(p)

	stream, err := pickStream(p, opts.stream)
	if err != nil {
		return err
	}

	in, closeIn, err := openInput(opts.input, stdin)
	if err != nil {
		return err
	}
	defer closeIn()
	records, err := serializer.ReadAll(in, codec)
	if err != nil {
		return err
	}

	start := time.Now()
	out, err := stream.Process(ctx, records)
	if err != nil {
		return err
	}
	failed := 0
	for _, r := range out {
		if r.HasErrors() {
			failed++
		}
	}

	w, closeOut, err := openOutput(opts.output, stdout)
	if err != nil {
		return err
	}
	defer closeOut()
	if err := serializer.WriteAll(w, codec, out); err != nil {
		return err
	}

	log.Info("stream completed",
		zap.String("stream", stream.Name()),
		zap.Int("records_in", len(records)),
		zap.Int("records_out", len(out)),
		zap.Int("records_with_errors", failed),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func pickStream(p *pipeline.Pipeline, name string) (*pipeline.Stream, error) {
	if name == "" {
		streams := p.Streams()
		if len(streams) == 0 {
			return nil, fmt.Errorf("job %s has no streams", p.Name())
		}
		return streams[0], nil
	}
	s, ok := p.Stream(name)
	if !ok {
		return nil, fmt.Errorf("job %s has no stream %q", p.Name(), name)
	}
	return s, nil
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func openOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func serveMetrics(addr string, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
	return srv
}

func closePipeline(p *pipeline.Pipeline) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Close(ctx); err != nil {
		logger.Warn("pipeline shutdown reported errors", zap.Error(err))
	}
}
