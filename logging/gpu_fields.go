package logging

import (
	"go.uber.org/zap"

	"sdserve/core"
)

// GPUFields creates a structured zap field from a GPU sample.
// This is a molecule that composes the core.GPUMetrics atom into a
// ready-to-use zap.Field. Whether a sample warrants a warning is
// decided by the sample's own threshold methods, not here.
//
// Example:
//
//	logger.Warn("GPU running hot", logging.GPUFields(sample))
func GPUFields(metrics core.GPUMetrics) zap.Field {
	return zap.Object("gpu", metrics)
}
