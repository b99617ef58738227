package memory

import (
	"encoding/json"
	"fmt"
)

const (
	// BucketWidgets holds the JSON encoded widget list.
	BucketWidgets = "widgets"
	// BucketSequence holds the last assigned widget id.
	BucketSequence = "sequence"
)

// Buckets lists the snapshot buckets durable stores persist, in write order.
var Buckets = []string{BucketWidgets, BucketSequence}

// EncodeBuckets splits a snapshot into per-bucket JSON payloads.
func EncodeBuckets(snapshot Snapshot) (map[string][]byte, error) {
	widgets := snapshot.Widgets
	if widgets == nil {
		widgets = []Widget{}
	}
	out := make(map[string][]byte, len(Buckets))
	data, err := json.Marshal(widgets)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", BucketWidgets, err)
	}
	out[BucketWidgets] = data
	if out[BucketSequence], err = json.Marshal(snapshot.LastID); err != nil {
		return nil, fmt.Errorf("encode %s: %w", BucketSequence, err)
	}
	return out, nil
}

// DecodeBuckets rebuilds a snapshot from bucket payloads. Unknown buckets are
// ignored and missing ones leave the zero value.
func DecodeBuckets(payloads map[string][]byte) (Snapshot, error) {
	var snapshot Snapshot
	for bucket, payload := range payloads {
		if len(payload) == 0 {
			continue
		}
		switch bucket {
		case BucketWidgets:
			if err := json.Unmarshal(payload, &snapshot.Widgets); err != nil {
				return Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
			}
		case BucketSequence:
			if err := json.Unmarshal(payload, &snapshot.LastID); err != nil {
				return Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
			}
		}
	}
	return snapshot, nil
}
