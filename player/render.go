package player

import (
	"fmt"
	"strings"
)

const (
	tracksPerPage = 10

	minTitleWidth = 30
	maxLineWidth  = 45
)

// FormatTrackTime renders milliseconds as m:ss or h:mm:ss.
func FormatTrackTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func trimTitle(title string, width int) string {
	runes := []rune(title)
	if len(runes) <= width {
		return title
	}
	return string(runes[:width-2]) + ".."
}

// Rendered lays the queue out as monospace pages of up to ten entries and
// returns them with the index of the page holding the current track (-1
// when nothing is current). The current entry is marked and annotated with
// its remaining time.
func (q *Queue) Rendered() ([]string, int) {
	if len(q.tracks) == 0 {
		return []string{"The queue is empty! Add some songs with the play command."}, -1
	}

	countWidth := len(fmt.Sprintf("%d", len(q.tracks)))
	titleWidth := maxLineWidth - countWidth
	if titleWidth < minTitleWidth {
		titleWidth = minTitleWidth
	}

	hasCurrent := q.IsPlayingTrack()
	currentPage := -1
	var pages []string
	var b strings.Builder

	for i, track := range q.tracks {
		isCurrent := hasCurrent && i == q.cursor

		var length string
		if dur, known := track.Duration(); known {
			length = FormatTrackTime(dur)
		} else {
			length = "live"
		}

		if isCurrent {
			currentPage = len(pages)
			marker := "current track"
			if q.repeat == RepeatTrack {
				marker += " (looping)"
			}
			if remaining := q.Remaining(); remaining >= 0 {
				length = FormatTrackTime(remaining) + " left"
			}
			fmt.Fprintf(&b, "%*s⬐ %s\n", countWidth+2, "", marker)
			fmt.Fprintf(&b, "%*d) %-*s %s\n", countWidth, i+1, titleWidth, trimTitle(track.Title, titleWidth), length)
			fmt.Fprintf(&b, "%*s⬑ %s\n", countWidth+2, "", marker)
		} else {
			fmt.Fprintf(&b, "%*d) %-*s %s\n", countWidth, i+1, titleWidth, trimTitle(track.Title, titleWidth), length)
		}

		if (i+1)%tracksPerPage == 0 && i+1 < len(q.tracks) {
			fmt.Fprintf(&b, "\n%d more tracks...\n", len(q.tracks)-i-1)
			pages = append(pages, b.String())
			b.Reset()
		}
	}

	if b.Len() > 0 || len(pages) == 0 {
		switch q.repeat {
		case RepeatQueue:
			b.WriteString("\nLooping through all tracks in the queue!\n")
		default:
			b.WriteString("\nThis is the end of the queue!\n")
		}
		pages = append(pages, b.String())
	}

	return pages, currentPage
}
