package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/simon020286/go-datahub"
	"github.com/simon020286/go-datahub/cmd/util"
)

const (
	entityTypeFlag     = "entity-type"
	flowFlag           = "flow"
	batchSizeFlag      = "batch-size"
	threadCountFlag    = "thread-count"
	runTraceFlag       = "run-trace"
	jobIDFlag          = "job-id"
	varFlag            = "var"
	inputFlag          = "input"
	inputCollection    = "input-collection"
	metricsEnabledFlag = "metrics-enabled"
	metricsAddrFlag    = "metrics-addr"
)

func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a flow over the staged documents of its entity type",
		Long: `The run command resolves a flow by entity type and name, collects its
input documents from the staging store and processes them in batches.`,
		RunE: runFlow,
		Args: cobra.NoArgs,
	}

	flags := cmd.Flags()
	flags.String(entityTypeFlag, "", "(required) the entity type of the flow")
	flags.String(flowFlag, "", "(required) the name of the flow")
	flags.Int(batchSizeFlag, datahub.DefaultBatchSize, "the number of documents processed by a worker per batch")
	flags.Int(threadCountFlag, datahub.DefaultThreadCount, "the number of batches processed concurrently")
	flags.Bool(runTraceFlag, true, "write the run trace listing the collected documents when tracing is enabled")
	flags.String(jobIDFlag, "", "the job id, generated when omitted")
	flags.StringArray(varFlag, nil, "a run variable as key=value, can be repeated")
	flags.String(inputFlag, "", "a directory of documents to load into staging before the run")
	flags.String(inputCollection, "", "the collection of the loaded documents, the entity type when omitted")
	flags.Bool(metricsEnabledFlag, false, "expose prometheus metrics while the flow runs")
	flags.String(metricsAddrFlag, "0.0.0.0:2112", "the address of the metrics endpoint")

	_ = cmd.MarkFlagRequired(entityTypeFlag)
	_ = cmd.MarkFlagRequired(flowFlag)

	cmd.PreRun = func(_ *cobra.Command, _ []string) {
		util.MustBindPFlag(batchSizeConf, flags.Lookup(batchSizeFlag))
		util.MustBindPFlag(threadCountConf, flags.Lookup(threadCountFlag))
		util.MustBindPFlag(runTraceConf, flags.Lookup(runTraceFlag))
		util.MustBindPFlag(metricsEnabledConf, flags.Lookup(metricsEnabledFlag))
		util.MustBindPFlag(metricsAddrConf, flags.Lookup(metricsAddrFlag))
	}

	return cmd
}

func runFlow(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flags := cmd.Flags()
	entityType, _ := flags.GetString(entityTypeFlag)
	flowName, _ := flags.GetString(flowFlag)
	jobID, _ := flags.GetString(jobIDFlag)
	input, _ := flags.GetString(inputFlag)
	collection, _ := flags.GetString(inputCollection)
	rawVars, _ := flags.GetStringArray(varFlag)

	vars, err := util.ParseVariables(rawVars)
	if err != nil {
		return err
	}

	h, err := openHub(ctx, true)
	if err != nil {
		return err
	}
	defer h.close()

	if input != "" {
		if collection == "" {
			collection = entityType
		}
		n, err := loadDirectory(ctx, h.stores.Staging, input, collection)
		if err != nil {
			return err
		}
		h.logger.Info("documents staged", zap.String("dir", input), zap.Int("count", n))
	}

	runner := h.manager.NewFlowRunner().
		WithFlow(entityType, flowName).
		WithBatchSize(viper.GetInt(batchSizeConf)).
		WithThreadCount(viper.GetInt(threadCountConf)).
		WithRunTrace(viper.GetBool(runTraceConf)).
		WithVariables(vars).
		WithJobID(jobID)

	g, gctx := errgroup.WithContext(ctx)
	finished := make(chan struct{})

	if viper.GetBool(metricsEnabledConf) {
		addr := viper.GetString(metricsAddrConf)
		g.Go(func() error {
			return serveMetrics(gctx, addr, finished, h)
		})
	}

	var job datahub.JobResult
	g.Go(func() error {
		defer close(finished)
		if err := runner.Run(gctx); err != nil {
			return err
		}
		err := runner.AwaitCompletion()
		job = runner.Job()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "job %s %s: collected=%d succeeded=%d failed=%d traces=%d\n",
		job.JobID, job.Status, job.Counts.Collected, job.Counts.Succeeded, job.Counts.Failed, job.Counts.Traces)
	for _, uri := range job.FailedURIs {
		fmt.Fprintf(cmd.OutOrStdout(), "failed: %s\n", uri)
	}
	return nil
}

// serveMetrics exposes /metrics until the run finished or ctx is canceled
func serveMetrics(ctx context.Context, addr string, finished <-chan struct{}, h *hub) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info(fmt.Sprintf("📈 starting prometheus metrics server on '%s'", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start prometheus metrics server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-finished:
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
