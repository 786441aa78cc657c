// Package store persists call records and transcripts.
//
// A call record is opened when the media leg connects and closed on hangup
// with the end reason and, when recording is enabled, the path of the WAV
// file written for the call. Transcript lines are appended as turns complete
// so a crashed call still leaves a partial transcript behind.
//
// Two implementations exist: [MemStore] for tests and storage-less
// deployments, and the postgres subpackage for durable persistence.
//
// All implementations must be safe for concurrent use.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when the requested call record does not exist.
var ErrNotFound = errors.New("call record not found")

// ErrDuplicateCall is returned by BeginCall when a record with the same call
// ID already exists.
var ErrDuplicateCall = errors.New("call record with that ID already exists")

// Role identifies the speaker of a transcript line.
type Role string

const (
	// RoleCaller marks speech transcribed from the caller's leg.
	RoleCaller Role = "caller"

	// RoleBot marks text the bot spoke (or started to speak before being
	// interrupted).
	RoleBot Role = "bot"

	// RoleSystem marks synthetic lines such as the injected memory context.
	RoleSystem Role = "system"
)

// End reasons recorded on closed calls.
const (
	EndHangup         = "hangup"
	EndTimeout        = "timeout"
	EndTransportError = "transport_error"
	EndShutdown       = "shutdown"
)

// CallRecord is the detail record for a single call.
type CallRecord struct {
	// CallID uniquely identifies the call. Assigned by the transport.
	CallID string

	// AgentID names the agent profile that handled the call.
	AgentID string

	// CallerID is the caller's phone number in E.164 form. May be empty when
	// the trunk withholds it.
	CallerID string

	// StartedAt is when the media leg connected.
	StartedAt time.Time

	// EndedAt is when the call ended. Zero while the call is live.
	EndedAt time.Time

	// EndReason describes why the call ended: "hangup", "timeout",
	// "transport_error" or "shutdown".
	EndReason string

	// RecordingPath is the filesystem path of the call's WAV recording.
	// Empty when recording is disabled or the write failed.
	RecordingPath string
}

// TranscriptLine is one utterance within a call.
type TranscriptLine struct {
	CallID string
	// Seq orders lines within a call, starting at 1.
	Seq     int
	Role    Role
	Content string
	At      time.Time
}

// Store persists call records and their transcripts.
type Store interface {
	// BeginCall opens a new call record. EndedAt, EndReason and
	// RecordingPath on the passed record are ignored.
	// Returns [ErrDuplicateCall] if the call ID is already recorded.
	BeginCall(ctx context.Context, rec CallRecord) error

	// EndCall closes the record: sets EndedAt and EndReason, and stores
	// recordingPath when non-empty.
	// Returns [ErrNotFound] when no record with that ID exists.
	EndCall(ctx context.Context, callID string, endedAt time.Time, reason, recordingPath string) error

	// GetCall retrieves a call record by ID.
	// Returns [ErrNotFound] when no record with that ID exists.
	GetCall(ctx context.Context, callID string) (CallRecord, error)

	// RecentCalls lists the most recently started calls, newest first.
	// limit <= 0 applies a default limit.
	RecentCalls(ctx context.Context, limit int) ([]CallRecord, error)

	// AppendTranscript appends one line to the call's transcript. The line's
	// Seq must be positive and unique within the call.
	AppendTranscript(ctx context.Context, line TranscriptLine) error

	// Transcript returns all lines of a call ordered by Seq. An unknown call
	// ID yields an empty slice, not an error, since transcript lines may
	// arrive for calls whose record write failed.
	Transcript(ctx context.Context, callID string) ([]TranscriptLine, error)
}
