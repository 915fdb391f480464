package stream

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/grafov/m3u8"
)

// Segment is one media segment listed in a live playlist.
type Segment struct {
	Sequence        uint64    `json:"sequence"`
	Duration        float64   `json:"duration"`
	Path            string    `json:"path"`
	ProgramDateTime time.Time `json:"program_date_time,omitzero"`
}

// Playlist is the parsed state of a transcoder's index.m3u8.
type Playlist struct {
	TargetDuration int       `json:"target_duration"`
	MediaSequence  uint64    `json:"media_sequence"`
	Segments       []Segment `json:"segments"`
	Ended          bool      `json:"ended"`
}

// LiveEdge returns the program date time of the newest segment, or the zero
// time when the transcoder does not tag segments.
func (p Playlist) LiveEdge() time.Time {
	if len(p.Segments) == 0 {
		return time.Time{}
	}
	return p.Segments[len(p.Segments)-1].ProgramDateTime
}

// Duration is the total duration of the listed window.
func (p Playlist) Duration() time.Duration {
	var sum float64
	for _, s := range p.Segments {
		sum += s.Duration
	}
	return time.Duration(sum * float64(time.Second))
}

// ParsePlaylist reads a live HLS media playlist. Segment sequence numbers
// count up from #EXT-X-MEDIA-SEQUENCE; a program date time tag applies to the
// segment that follows it. Master playlists are rejected.
func ParsePlaylist(r io.Reader) (Playlist, error) {
	decoded, listType, err := m3u8.DecodeFrom(r, true)
	if err != nil {
		return Playlist{}, fmt.Errorf("playlist: %w", err)
	}
	media, ok := decoded.(*m3u8.MediaPlaylist)
	if listType != m3u8.MEDIA || !ok {
		return Playlist{}, errors.New("playlist: not a media playlist")
	}

	pl := Playlist{
		TargetDuration: int(math.Ceil(media.TargetDuration)),
		MediaSequence:  media.SeqNo,
		Segments:       []Segment{},
		Ended:          media.Closed,
	}
	for i, seg := range media.Segments {
		// the decoder's ring buffer is nil past the last segment
		if seg == nil {
			break
		}
		pl.Segments = append(pl.Segments, Segment{
			Sequence:        media.SeqNo + uint64(i),
			Duration:        seg.Duration,
			Path:            seg.URI,
			ProgramDateTime: seg.ProgramDateTime.UTC(),
		})
	}
	if pl.TargetDuration == 0 {
		pl.TargetDuration = targetDurationFromSegments(pl.Segments)
	}
	return pl, nil
}

// targetDurationFromSegments returns the HLS #EXT-X-TARGETDURATION value:
// the ceiling of the maximum segment duration in seconds (integer).
func targetDurationFromSegments(segments []Segment) int {
	max := 0.0
	for _, seg := range segments {
		if seg.Duration > max {
			max = seg.Duration
		}
	}
	if max <= 0 {
		return 0
	}
	return int(math.Ceil(max))
}
