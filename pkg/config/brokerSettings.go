package config

// BrokerSettings holds configuration for connecting to a message broker.
type BrokerSettings struct {
	Type      string `mapstructure:"type" validate:"required,oneof=rabbitmq gcp-pubsub"`
	URL       string `mapstructure:"url" validate:"required_if=Type rabbitmq"`
	ProjectID string `mapstructure:"projectID" validate:"required_if=Type gcp-pubsub"` // Only for GCP Pub/Sub
	PoolSize  int    `mapstructure:"pool_size"`                                        // 0 means a fresh connection per publish
}
