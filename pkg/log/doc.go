/*
Package log provides toygres's structured logging, a thin wrapper around
zerolog giving every component a consistently-tagged child logger.

# Configuration

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true, // false renders a human console writer instead
	})

Init sets the global zerolog level and builds the package-level Logger;
cmd/toygres calls it once in cobra's OnInitialize, from the --log-level/
--log-json persistent flags.

# Component loggers

Every package that logs pulls its own child logger rather than writing
through the bare global Logger, so every line carries context for free:

	logger := log.WithComponent("worker")
	logger.Info().Str("activity", name).Msg("invoking activity")

	logger = log.WithInstanceID(instanceID)
	logger = log.WithOrchestration(orchestrationID, executionID)
	logger = log.WithActivity(activityName, taskID)

# See also

  - pkg/worker, pkg/engine: tag every log line with orchestration_id/
    execution_id or activity/task_id via WithOrchestration/WithActivity.
  - pkg/api: tags request-scoped logs with the chi request id via its
    own accessLog middleware, built on WithComponent("api").
*/
package log
