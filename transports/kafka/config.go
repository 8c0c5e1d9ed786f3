package kafka

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// Config holds the bridge settings
type Config struct {
	Brokers  []string
	ClientID string
	GroupID  string
	Service  string
	Version  string

	Partitions    int32
	Replication   int16
	RetentionMs   int64
	CleanupPolicy string
	SettleDelay   time.Duration

	SessionTimeout    time.Duration
	HeartbeatInterval time.Duration
	RebalanceTimeout  time.Duration

	Compression    string
	ReconnectDelay time.Duration
	MaxRetries     int
}

// GroupName is the consumer group of this service
func (c Config) GroupName() string {
	return c.GroupID + "-" + c.Service
}

// TopicDetail describes a topic created by EnsureTopic
func (c Config) TopicDetail() *sarama.TopicDetail {
	cleanup := c.CleanupPolicy
	if cleanup == "" {
		cleanup = "delete"
	}
	retention := strconv.FormatInt(c.RetentionMs, 10)

	return &sarama.TopicDetail{
		NumPartitions:     max(c.Partitions, 1),
		ReplicationFactor: max(c.Replication, 1),
		ConfigEntries: map[string]*string{
			"cleanup.policy": &cleanup,
			"retention.ms":   &retention,
		},
	}
}

func (c Config) base() (*sarama.Config, error) {
	sc := sarama.NewConfig()
	if c.ClientID != "" {
		sc.ClientID = c.ClientID
	}

	version, err := parseKafkaVersion(c.Version)
	if err != nil {
		return nil, err
	}
	sc.Version = version
	sc.Metadata.AllowAutoTopicCreation = false
	return sc, nil
}

// AdminConfig builds the cluster admin configuration
func (c Config) AdminConfig() (*sarama.Config, error) {
	return c.base()
}

// ProducerConfig builds the sync producer configuration
func (c Config) ProducerConfig() (*sarama.Config, error) {
	sc, err := c.base()
	if err != nil {
		return nil, err
	}

	compression, err := parseCompressionCodec(c.Compression)
	if err != nil {
		return nil, err
	}

	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Compression = compression
	return sc, nil
}

// ConsumerConfig builds the consumer group configuration
func (c Config) ConsumerConfig() (*sarama.Config, error) {
	sc, err := c.base()
	if err != nil {
		return nil, err
	}

	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	if c.SessionTimeout > 0 {
		sc.Consumer.Group.Session.Timeout = c.SessionTimeout
	}
	if c.HeartbeatInterval > 0 {
		sc.Consumer.Group.Heartbeat.Interval = c.HeartbeatInterval
	}
	if c.RebalanceTimeout > 0 {
		sc.Consumer.Group.Rebalance.Timeout = c.RebalanceTimeout
	}
	return sc, nil
}

func parseKafkaVersion(raw string) (sarama.KafkaVersion, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "default":
		return sarama.DefaultVersion, nil
	case "max":
		return sarama.MaxVersion, nil
	default:
		version, err := sarama.ParseKafkaVersion(raw)
		if err != nil {
			return sarama.KafkaVersion{}, fmt.Errorf("%w: KAFKA_VERSION: %w", ErrInvalidSetting, err)
		}
		return version, nil
	}
}

func parseCompressionCodec(raw string) (sarama.CompressionCodec, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "gzip":
		return sarama.CompressionGZIP, nil
	case "none":
		return sarama.CompressionNone, nil
	case "lz4":
		return sarama.CompressionLZ4, nil
	case "snappy":
		return sarama.CompressionSnappy, nil
	case "zstd":
		return sarama.CompressionZSTD, nil
	default:
		return sarama.CompressionNone, fmt.Errorf("%w: KAFKA_COMPRESSION: %s", ErrInvalidSetting, raw)
	}
}
