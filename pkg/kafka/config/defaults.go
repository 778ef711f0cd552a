package kafka_config

import "time"

const (
	// Empty by default: event publishing is disabled until brokers are
	// configured.
	DefaultKafkaBrokers = ""

	DefaultProducerMaxAttempts  = 3
	DefaultProducerBatchTimeout = 100 * time.Millisecond
	DefaultProducerRequireAcks  = -1
	DefaultProducerCompression  = "snappy"
	DefaultProducerAsync        = false

	DefaultSessionEventsTopic = "keyring.session-events"
	DefaultSessionEventsDLQ   = "keyring.session-events.dlq"
)
