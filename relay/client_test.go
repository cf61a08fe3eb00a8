package relay

import (
	"testing"

	"github.com/quaverbot/quaver/player"
)

func TestParseLoadResult(t *testing.T) {
	data := []byte(`{
		"loadType": "SEARCH_RESULT",
		"tracks": [{
			"track": "QAAAjQIAJFJpY2sgQXN0bGV5",
			"info": {
				"identifier": "dQw4w9WgXcQ",
				"isSeekable": true,
				"author": "Rick Astley",
				"length": 212000,
				"isStream": false,
				"title": "Never Gonna Give You Up",
				"uri": "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
			}
		}]
	}`)

	result, err := parseLoadResult(data)
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed {
		t.Fatal("search result marked as failed")
	}
	if len(result.Tracks) != 1 {
		t.Fatalf("got %d tracks, want 1", len(result.Tracks))
	}
	info := result.Tracks[0]
	if info.Handle != "QAAAjQIAJFJpY2sgQXN0bGV5" || info.Duration != 212000 || !info.Seekable {
		t.Fatalf("unexpected track info %+v", info)
	}
}

func TestParseLoadResultFailure(t *testing.T) {
	result, err := parseLoadResult([]byte(`{"loadType": "LOAD_FAILED", "tracks": []}`))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Failed {
		t.Fatal("LOAD_FAILED should mark the result failed")
	}

	result, err = parseLoadResult([]byte(`{"loadType": "NO_MATCHES", "tracks": []}`))
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed || len(result.Tracks) != 0 {
		t.Fatalf("NO_MATCHES should be an empty success, got %+v", result)
	}
}

func TestTranslateEvent(t *testing.T) {
	for _, tc := range []struct {
		name string
		msg  inboundMessage
		want player.Event
		ok   bool
	}{
		{
			name: "track end",
			msg:  inboundMessage{Type: "TrackEndEvent", Track: "h1", Reason: "FINISHED"},
			want: player.Event{Kind: player.EventTrackEnd, TrackHandle: "h1", Reason: player.EndReasonFinished},
			ok:   true,
		},
		{
			name: "track stuck",
			msg:  inboundMessage{Type: "TrackStuckEvent", Track: "h1", Stuck: 10000},
			want: player.Event{Kind: player.EventTrackStuck, TrackHandle: "h1", Threshold: 10000},
			ok:   true,
		},
		{
			name: "exception",
			msg:  inboundMessage{Type: "TrackExceptionEvent", Track: "h1", Error: "boom"},
			want: player.Event{Kind: player.EventTrackException, TrackHandle: "h1", Error: "boom"},
			ok:   true,
		},
		{
			name: "voice socket closed is not routed",
			msg:  inboundMessage{Type: "WebSocketClosedEvent", GuildID: "1"},
			ok:   false,
		},
	} {
		got, ok := translateEvent(tc.msg)
		if ok != tc.ok {
			t.Fatalf("%s: routed=%v, want %v", tc.name, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}
