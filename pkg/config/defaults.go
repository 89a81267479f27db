package config

// Default values applied by LoadConfig before the file and environment.
const (
	DefaultBatchSize         = 20
	DefaultBatchTimeout      = "2s"
	DefaultBoundedCapacity   = 4
	DefaultBatchParallelism  = 2
	DefaultActionParallelism = 2
	DefaultLoadConcurrency   = 1

	DefaultPersistenceDir      = ".analysisd"
	DefaultPersistenceBasename = "pending-actions"
	DefaultPersistenceCodec    = "json"
	DefaultPersistenceCompress = false

	DefaultLibraryDSN = "analysisd.db"

	DefaultLogLevel    = "info"
	DefaultLogJSON     = false
	DefaultSampleRatio = 1.0

	DefaultMetricsAddr = ""
)
