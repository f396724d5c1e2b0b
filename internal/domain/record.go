package domain

import (
	"time"
)

// AtomicRecord is a step or event projected into the audit chain. Hash is a
// deterministic function of (type, id, body, prev_hash); PrevHash links each
// record to its chronological predecessor. The first record of a chain has
// no PrevHash. This proves sequence and non-tampering retrospectively; it
// does not arbitrate concurrent writers.
type AtomicRecord struct {
	Type     string                 `json:"type"`
	ID       string                 `json:"id"`
	Body     map[string]interface{} `json:"body,omitempty"`
	Meta     RecordMeta             `json:"meta"`
	Hash     string                 `json:"hash"`
	PrevHash string                 `json:"prev_hash,omitempty"`
}

type RecordMeta struct {
	Header RecordHeader `json:"header"`
}

type RecordHeader struct {
	Who    string       `json:"who"`
	Did    string       `json:"did"`
	This   string       `json:"this"`
	When   time.Time    `json:"when"`
	Status RecordStatus `json:"status"`
}

type RecordStatus string

const (
	RecordStatusApprove RecordStatus = "APPROVE"
	RecordStatusReview  RecordStatus = "REVIEW"
	RecordStatusDeny    RecordStatus = "DENY"
)

// Chain holds the two independently linked record sequences for one run.
type Chain struct {
	RunID  string         `json:"run_id"`
	Steps  []AtomicRecord `json:"steps"`
	Events []AtomicRecord `json:"events"`
}
