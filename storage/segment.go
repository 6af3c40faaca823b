package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	log "github.com/CefBoud/monsink/logging"
	"github.com/CefBoud/monsink/types"
)

// DefaultExtension is the extension of uncompressed CSV segments.
const DefaultExtension = ".csv"

const partitionDirPrefix = "partition"

// SegmentName formats a segment file name from the offset of its first record.
// Offsets are zero padded to 9 digits, wider offsets are printed as is.
// partition and startOffset must be non-negative, ParseSegmentName cannot
// recover a negative value from the name.
func SegmentName(topic string, partition int32, startOffset int64, ext string) string {
	return fmt.Sprintf("%s-%d-%09d%s", topic, partition, startOffset, ext)
}

// PartitionDir returns the directory holding a partition's segments.
func PartitionDir(rootDir, topic string, partition int32) string {
	return filepath.Join(rootDir, topic, partitionDirPrefix+strconv.Itoa(int(partition)))
}

// SegmentPath returns the full path of a segment.
func SegmentPath(rootDir, topic string, partition int32, startOffset int64, ext string) string {
	return filepath.Join(PartitionDir(rootDir, topic, partition), SegmentName(topic, partition, startOffset, ext))
}

var errBadSegmentName = errors.New("not a segment file name")

// ParseSegmentName splits a segment file name back into its parts. The topic may contain '-'.
func ParseSegmentName(name string) (types.SegmentInfo, error) {
	i := strings.LastIndex(name, "-")
	if i <= 0 {
		return types.SegmentInfo{}, fmt.Errorf("%q: %w", name, errBadSegmentName)
	}
	rest := name[i+1:]
	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	ext := rest[digits:]
	if digits == 0 || (ext != "" && ext[0] != '.') {
		return types.SegmentInfo{}, fmt.Errorf("%q: %w", name, errBadSegmentName)
	}
	offset, err := strconv.ParseInt(rest[:digits], 10, 64)
	if err != nil {
		return types.SegmentInfo{}, fmt.Errorf("%q: %w", name, errBadSegmentName)
	}
	head := name[:i]
	j := strings.LastIndex(head, "-")
	if j <= 0 {
		return types.SegmentInfo{}, fmt.Errorf("%q: %w", name, errBadSegmentName)
	}
	partition, err := strconv.ParseInt(head[j+1:], 10, 32)
	if err != nil {
		return types.SegmentInfo{}, fmt.Errorf("%q: %w", name, errBadSegmentName)
	}
	return types.SegmentInfo{
		Topic:       head[:j],
		Partition:   int32(partition),
		StartOffset: offset,
		Extension:   ext,
	}, nil
}

// ListSegments returns the segments found in dir, ordered by start offset.
// Entries that are not segment files are skipped.
func ListSegments(st Storage, dir string) ([]types.SegmentInfo, error) {
	paths, err := st.List(dir)
	if err != nil {
		return nil, err
	}
	var segments []types.SegmentInfo
	for _, p := range paths {
		info, err := ParseSegmentName(filepath.Base(p))
		if err != nil {
			log.Debug("skipping %v: %v", p, err)
			continue
		}
		info.Path = p
		segments = append(segments, info)
	}
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].StartOffset < segments[j].StartOffset
	})
	return segments, nil
}

// ListPartitionSegments lists the segments of one partition. A partition that
// has never been written to has no segments.
func ListPartitionSegments(st Storage, rootDir, topic string, partition int32) ([]types.SegmentInfo, error) {
	segments, err := ListSegments(st, PartitionDir(rootDir, topic, partition))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return segments, err
}
