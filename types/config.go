package types

// Configuration is the sink configuration, usually loaded from YAML by the config package.
type Configuration struct {
	RootDir          string `yaml:"root_dir" validate:"required"`
	FlushSize        int    `yaml:"flush_size" validate:"gt=0"`
	RotateIntervalMs int64  `yaml:"rotate_interval_ms" validate:"gt=0"`
	// RotateOnIdle lets a Write with nothing buffered finalize an open segment older than RotateIntervalMs.
	RotateOnIdle    bool   `yaml:"rotate_on_idle"`
	FlushIntervalMs int64  `yaml:"flush_interval_ms" validate:"gt=0"`
	Format          string `yaml:"format" validate:"oneof=csv json"`
	Compression     string `yaml:"compression" validate:"oneof=none gzip snappy lz4 zstd"`
	GuardPath       string `yaml:"guard_path"`
	MetricsAddr     string `yaml:"metrics_addr"`
	LogLevel        string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error TRACE DEBUG INFO WARN ERROR"`

	Storage StorageConfig `yaml:"storage"`
	Kafka   KafkaConfig   `yaml:"kafka"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Type            string `yaml:"type" validate:"oneof=local s3 memory"`
	Bucket          string `yaml:"bucket" validate:"required_if=Type s3"`
	Region          string `yaml:"region" validate:"required_if=Type s3"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
}

// KafkaConfig configures the upstream consumer driving the sink.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Group   string   `yaml:"group"`
	Topics  []string `yaml:"topics"`
}
