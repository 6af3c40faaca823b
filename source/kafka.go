// Package source consumes Kafka partitions into a sink task and commits the
// offsets the task reports as durable.
package source

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	log "github.com/CefBoud/monsink/logging"
	"github.com/CefBoud/monsink/serde"
	"github.com/CefBoud/monsink/sink"
	"github.com/CefBoud/monsink/types"
	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// Kafka drives a sink.Task from a consumer group.
type Kafka struct {
	client *kgo.Client
	task   *sink.Task
	// serializes commits from the flush loop and the rebalance callbacks
	commitMu sync.Mutex
}

// NewKafka creates the consumer group client. Partition assignment and revocation
// open and close the task's writers.
func NewKafka(cfg types.KafkaConfig, task *sink.Task) (*Kafka, error) {
	if len(cfg.Brokers) == 0 || cfg.Group == "" || len(cfg.Topics) == 0 {
		return nil, errors.New("kafka brokers, group and topics are required")
	}
	k := &Kafka{task: task}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
		kgo.OnPartitionsAssigned(k.onAssigned),
		kgo.OnPartitionsRevoked(k.onRevoked),
		kgo.OnPartitionsLost(k.onLost),
		kgo.WithLogger(kgoLogger{log.Named("kafka")}),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	k.client = client
	return k, nil
}

func (k *Kafka) onAssigned(_ context.Context, _ *kgo.Client, assigned map[string][]int32) {
	partitions := topicPartitions(assigned)
	log.Info("assigned partitions %v", partitions)
	if err := k.task.Open(partitions); err != nil {
		log.Error("error while opening partition writers: %v", err)
	}
}

// onRevoked finalizes the open segments of revoked partitions and commits them
// before the group hands the partitions to another member.
func (k *Kafka) onRevoked(ctx context.Context, cl *kgo.Client, revoked map[string][]int32) {
	partitions := topicPartitions(revoked)
	log.Info("revoked partitions %v", partitions)
	offsets, err := k.task.Revoke(partitions)
	if err != nil {
		log.Error("error while closing revoked partition writers: %v", err)
	}
	if err := k.commit(ctx, cl, offsets); err != nil {
		log.Error("error while committing revoked partitions: %v", err)
	}
}

// onLost closes the writers without committing; the partitions already belong to someone else.
func (k *Kafka) onLost(_ context.Context, _ *kgo.Client, lost map[string][]int32) {
	partitions := topicPartitions(lost)
	log.Warn("lost partitions %v", partitions)
	if _, err := k.task.Revoke(partitions); err != nil {
		log.Error("error while closing lost partition writers: %v", err)
	}
}

// Run polls until ctx is done. The task's flush loop commits in the background.
func (k *Kafka) Run(ctx context.Context) error {
	flushDone := make(chan error, 1)
	go func() {
		flushDone <- k.task.Run(ctx, func(offsets map[types.TopicPartition]int64) error {
			return k.commit(ctx, k.client, offsets)
		})
	}()

	for {
		fetches := k.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			k.client.AllowRebalance()
			break
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			log.Error("fetch error on %v-%v: %v", topic, partition, err)
		})
		var records []types.Record
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, toRecord(r))
		})
		if err := k.task.Put(records); err != nil {
			if !errors.Is(err, sink.ErrNotAssigned) {
				k.client.AllowRebalance()
				return fmt.Errorf("buffer fetched records: %w", err)
			}
			log.Warn("dropping fetched records: %v", err)
		}
		k.client.AllowRebalance()
	}
	return <-flushDone
}

// Close flushes, commits and leaves the group. Leaving revokes every partition,
// which finalizes the open segments.
func (k *Kafka) Close(ctx context.Context) error {
	offsets, err := k.task.Flush()
	if err != nil {
		log.Error("error while flushing on shutdown: %v", err)
	}
	if err := k.commit(ctx, k.client, offsets); err != nil {
		log.Error("error while committing on shutdown: %v", err)
	}
	k.client.Close()
	return k.task.Close()
}

func (k *Kafka) commit(ctx context.Context, cl *kgo.Client, offsets map[types.TopicPartition]int64) error {
	if len(offsets) == 0 {
		return nil
	}
	k.commitMu.Lock()
	defer k.commitMu.Unlock()
	var commitErr error
	cl.CommitOffsetsSync(ctx, commitMap(offsets), func(_ *kgo.Client, _ *kmsg.OffsetCommitRequest, resp *kmsg.OffsetCommitResponse, err error) {
		if err != nil {
			commitErr = err
			return
		}
		commitErr = responseError(resp)
	})
	if commitErr != nil {
		return fmt.Errorf("commit offsets: %w", commitErr)
	}
	log.Debug("committed offsets %v", offsets)
	return nil
}

func responseError(resp *kmsg.OffsetCommitResponse) error {
	for _, t := range resp.Topics {
		for _, p := range t.Partitions {
			if err := kerr.ErrorForCode(p.ErrorCode); err != nil {
				return fmt.Errorf("%v-%v: %w", t.Topic, p.Partition, err)
			}
		}
	}
	return nil
}

func toRecord(r *kgo.Record) types.Record {
	return types.Record{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       r.Key,
		Row:       serde.DecodeRow(r.Value),
	}
}

func topicPartitions(m map[string][]int32) []types.TopicPartition {
	var partitions []types.TopicPartition
	for topic, ps := range m {
		for _, p := range ps {
			partitions = append(partitions, types.TopicPartition{Topic: topic, Partition: p})
		}
	}
	sort.Slice(partitions, func(i, j int) bool {
		if partitions[i].Topic != partitions[j].Topic {
			return partitions[i].Topic < partitions[j].Topic
		}
		return partitions[i].Partition < partitions[j].Partition
	})
	return partitions
}

// commitMap converts committed offsets (the next offset to consume) to the kgo commit layout.
func commitMap(offsets map[types.TopicPartition]int64) map[string]map[int32]kgo.EpochOffset {
	m := make(map[string]map[int32]kgo.EpochOffset)
	for tp, offset := range offsets {
		if m[tp.Topic] == nil {
			m[tp.Topic] = make(map[int32]kgo.EpochOffset)
		}
		m[tp.Topic][tp.Partition] = kgo.EpochOffset{Epoch: -1, Offset: offset}
	}
	return m
}

// kgoLogger adapts hclog to the kgo.Logger interface.
type kgoLogger struct {
	hclog.Logger
}

func (l kgoLogger) Level() kgo.LogLevel {
	switch {
	case l.IsDebug() || l.IsTrace():
		return kgo.LogLevelDebug
	case l.IsInfo():
		return kgo.LogLevelInfo
	case l.IsWarn():
		return kgo.LogLevelWarn
	}
	return kgo.LogLevelError
}

func (l kgoLogger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	switch level {
	case kgo.LogLevelDebug:
		l.Debug(msg, keyvals...)
	case kgo.LogLevelInfo:
		l.Info(msg, keyvals...)
	case kgo.LogLevelWarn:
		l.Warn(msg, keyvals...)
	case kgo.LogLevelError:
		l.Error(msg, keyvals...)
	}
}
