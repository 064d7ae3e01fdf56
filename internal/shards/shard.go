// Package shards models the numbered partial-result objects the external
// analysis job writes, and decides when a job's shard set is complete.
//
// Key layout is <...>/<jobID>/<seq>: the final path segment is the 1-based
// shard number, the segment before it is the job id. Anything else under
// the container (probe objects, merge results, sidecars) fails ParseKey and
// is silently skipped by ingestion.
package shards

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/collate/internal/fault"
)

var (
	// ErrNotShard marks keys whose final segment is not a pure
	// non-negative integer. Filtered silently.
	ErrNotShard = errors.New("key is not a numbered shard")
	// ErrNoJobID marks numbered keys with no extractable job id.
	// Logged and skipped, never retried.
	ErrNoJobID = errors.New("no job id in shard key")
)

// Ref identifies one shard within a job.
type Ref struct {
	JobID string
	Seq   int
	Key   string
}

// Block is one fragment of analyzed content.
type Block struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Page int    `json:"page,omitempty"`
}

// Payload is the structured content of a single shard. Shard #1
// additionally declares the total shard count for the job.
type Payload struct {
	TotalCount int     `json:"totalCount,omitempty"`
	Blocks     []Block `json:"blocks"`
}

const payloadSchema = `{
	"type": "object",
	"required": ["blocks"],
	"properties": {
		"totalCount": {"type": "integer", "minimum": 0},
		"blocks": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["text"],
				"properties": {
					"type": {"type": "string"},
					"text": {"type": "string"},
					"page": {"type": "integer"}
				}
			}
		}
	}
}`

var compiledSchema = jsonschema.MustCompileString("shard.json", payloadSchema)

// ParseKey validates and decomposes a shard key.
func ParseKey(key string) (Ref, error) {
	segs := strings.Split(strings.Trim(key, "/"), "/")
	last := segs[len(segs)-1]
	seq, err := strconv.Atoi(last)
	if err != nil || seq < 0 || strings.HasPrefix(last, "+") || strings.HasPrefix(last, "-") {
		return Ref{}, fmt.Errorf("%q: %w", key, ErrNotShard)
	}
	if len(segs) < 2 || segs[len(segs)-2] == "" {
		return Ref{}, fmt.Errorf("%q: %w", key, ErrNoJobID)
	}
	return Ref{JobID: segs[len(segs)-2], Seq: seq, Key: key}, nil
}

// ParsePayload decodes and validates a shard payload. Failures are
// ProcessingErrors: the merger drops the shard rather than aborting.
func ParsePayload(data []byte) (Payload, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Payload{}, fault.Wrap(fault.Processing, "ShardParse", err, "shard payload is not valid JSON")
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return Payload{}, fault.Wrap(fault.Processing, "ShardSchema", err, "shard payload does not match schema")
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fault.Wrap(fault.Processing, "ShardParse", err, "failed to decode shard payload")
	}
	return p, nil
}
