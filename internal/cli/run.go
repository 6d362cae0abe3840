package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/flowcore/internal/backoff"
	"github.com/mrz1836/flowcore/internal/coordinator"
	"github.com/mrz1836/flowcore/internal/enqueue"
	"github.com/mrz1836/flowcore/internal/eventsink"
	"github.com/mrz1836/flowcore/internal/executor"
	"github.com/mrz1836/flowcore/internal/finalizer"
	"github.com/mrz1836/flowcore/internal/handler"
	"github.com/mrz1836/flowcore/internal/statemachine"
	"github.com/mrz1836/flowcore/internal/store"
)

// AddRunCommand registers the "run" subcommand, which drives one
// in-code-defined sample Task to completion through the Coordinator loop
// against an in-memory Store and in-process Enqueuer.
func AddRunCommand(root *cobra.Command, flags *GlobalFlags) {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a sample order-processing Task to completion",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(flags)
		},
	}
	root.AddCommand(cmd)
}

func runDemo(flags *GlobalFlags) error {
	logger := InitLogger(flags.Verbose, flags.Quiet)
	sink := eventsink.NewLogSink(logger)

	st := store.NewMemStore()
	sm := statemachine.New(statemachine.WithEventSink(sink))
	bp := backoff.NewPolicy(backoff.DefaultConfig(), backoff.WithEventSink(sink))

	reg := handler.NewRegistry()
	if err := registerDemoHandlers(reg); err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}

	exec := executor.New(st, sm, bp, reg, executor.WithEventSink(sink), executor.WithLogger(logger))

	var coord *coordinator.Coordinator
	enq := enqueue.NewInProcess(func(ctx context.Context, taskID string) {
		if _, err := coord.Run(ctx, taskID); err != nil {
			logger.Error().Err(err).Str("task_id", taskID).Msg("re-enqueued run failed")
		}
	}, logger)

	fin := finalizer.New(sm, enq, finalizer.WithEventSink(sink), finalizer.WithLogger(logger))
	coord = coordinator.New(st, sm, exec, fin, coordinator.WithEventSink(sink), coordinator.WithLogger(logger))

	task, err := newSampleTask(time.Now().UTC())
	if err != nil {
		return fmt.Errorf("build sample task: %w", err)
	}
	if err := st.SaveTask(context.Background(), task); err != nil {
		return fmt.Errorf("save sample task: %w", err)
	}

	outcome, err := coord.Run(context.Background(), task.TaskID)
	if err != nil {
		return fmt.Errorf("run task: %w", err)
	}

	logger.Info().Str("task_id", task.TaskID).Str("outcome", string(outcome)).Msg("task run finished")
	return nil
}
