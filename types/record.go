package types

import (
	"fmt"
)

// Row is one structured row carried by a record, cells in column order.
// How a row becomes bytes is left to the serde package.
type Row []any

// Record represents a single consumed message of a topic partition.
// Offsets are strictly increasing per partition in delivery order.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Row       Row
}

// TopicPartition identifies one partition of a topic.
type TopicPartition struct {
	Topic     string
	Partition int32
}

// String provides a string representation of the partition, combining the topic name and partition index.
func (tp TopicPartition) String() string {
	return fmt.Sprintf("%v-%v", tp.Topic, tp.Partition)
}

// TopicPartition returns the partition the record belongs to.
func (r Record) TopicPartition() TopicPartition {
	return TopicPartition{Topic: r.Topic, Partition: r.Partition}
}

// SegmentInfo describes a finalized or in-progress segment file.
type SegmentInfo struct {
	Path        string
	Topic       string
	Partition   int32
	StartOffset int64
	Extension   string
}
