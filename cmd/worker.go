package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/workflow"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a Temporal worker that executes research workflows",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context(), "worker")
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := dialTemporal()
		if err != nil {
			return err
		}
		defer c.Close()

		w := workflow.NewWorker(c, cfg.Temporal.TaskQueue, &workflow.Activities{Pipeline: env.Pipeline})

		zap.L().Info("worker: started",
			zap.String("host_port", cfg.Temporal.HostPort),
			zap.String("namespace", cfg.Temporal.Namespace),
			zap.String("task_queue", cfg.Temporal.TaskQueue),
		)
		if err := w.Run(worker.InterruptCh()); err != nil {
			return eris.Wrap(err, "worker: run")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
