package player

// EventKind distinguishes the asynchronous events the relay emits about a
// session. Stuck, exception and a finished/load-failed end all funnel into
// "attempt the next track" inside Player.HandleEvent.
type EventKind int

const (
	EventTrackStart EventKind = iota
	EventTrackStuck
	EventTrackException
	EventTrackEnd
	EventQueueEnd
)

func (k EventKind) String() string {
	switch k {
	case EventTrackStart:
		return "track_start"
	case EventTrackStuck:
		return "track_stuck"
	case EventTrackException:
		return "track_exception"
	case EventTrackEnd:
		return "track_end"
	case EventQueueEnd:
		return "queue_end"
	}
	return "unknown"
}

// TrackEndReason is the relay's reason code on a track-end event.
type TrackEndReason string

const (
	EndReasonFinished   TrackEndReason = "FINISHED"
	EndReasonLoadFailed TrackEndReason = "LOAD_FAILED"
	EndReasonStopped    TrackEndReason = "STOPPED"
	EndReasonReplaced   TrackEndReason = "REPLACED"
	EndReasonCleanup    TrackEndReason = "CLEANUP"
)

// MayStartNext reports whether the session should advance after a track
// ended with this reason.
func (r TrackEndReason) MayStartNext() bool {
	return r == EndReasonFinished || r == EndReasonLoadFailed
}

// Event is one relay event targeted at a single session. TrackHandle
// identifies which track the event is about; Player ignores events whose
// handle no longer matches the current track (stale after a reconnect
// replay).
type Event struct {
	Kind        EventKind
	TrackHandle string
	Reason      TrackEndReason
	Error       string
	Threshold   int64 // ms, track-stuck only
}
