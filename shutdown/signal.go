package shutdown

import (
	"os"

	"sdserve/logging"

	"go.uber.org/zap"
)

// watchSignals consumes sigCh until it is closed. The first delivery
// invokes graceful, every later one invokes force. A synchronous
// generation can hold the device for minutes, so an operator who cannot
// wait out the drain gets an escape hatch on the second Ctrl+C.
func watchSignals(sigCh <-chan os.Signal, logger *logging.Logger, graceful, force func()) {
	delivered := 0
	for sig := range sigCh {
		delivered++
		if delivered == 1 {
			logger.Info("Received shutdown signal, initiating graceful shutdown",
				zap.String("signal", sig.String()),
			)
			graceful()
			continue
		}
		logger.Warn("Received repeat signal, forcing immediate exit",
			zap.String("signal", sig.String()),
			zap.Int("delivered", delivered),
		)
		force()
	}
}
