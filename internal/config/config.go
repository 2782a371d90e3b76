// Package config holds the mount-time tunables for ytfs. There is no
// persistent configuration file (spec.md §6 "Persisted state: None"); every
// field here is filled either from a flag default or an explicit override
// passed at mount time, following the shape of rclone's per-backend
// Options structs (e.g. backend/http.Options) even though there is no
// config-file mapper behind it here.
package config

import "time"

// MediaMode selects which streams a StreamingStore fetches and whether it
// must mux them together.
type MediaMode int

const (
	// AudioOnly fetches only the best audio source.
	AudioOnly MediaMode = iota
	// VideoOnly fetches only the best video source.
	VideoOnly
	// Muxed fetches both and combines them with an external muxer.
	Muxed
)

func (m MediaMode) String() string {
	switch m {
	case AudioOnly:
		return "audio"
	case VideoOnly:
		return "video"
	case Muxed:
		return "muxed"
	default:
		return "unknown"
	}
}

// Options holds every tunable knob a mount session needs.
type Options struct {
	// Mode selects the stream combination fetched for every result file.
	Mode MediaMode

	// ReadAhead is how far past a requested range a fetch may be enlarged
	// to amortize request latency (spec.md §4.5 point 3: "may be enlarged
	// to the right ... must not be shrunk").
	ReadAhead int64

	// RetryAttempts bounds the number of attempts (including the first)
	// made against a transient fetch error before it surfaces as EIO.
	RetryAttempts int

	// RetryBackoffBase is the delay before the second attempt; each
	// subsequent attempt doubles it up to RetryBackoffCap.
	RetryBackoffBase time.Duration

	// RetryBackoffCap bounds the backoff delay.
	RetryBackoffCap time.Duration

	// PageSize is how many results ResultSet asks the resolver for per page.
	PageSize int

	// InMemoryCacheThreshold is the largest filesize for which the
	// StreamingStore cache is an in-memory buffer rather than a temp file
	// on disk; above it a seekable temp file backs the cache.
	InMemoryCacheThreshold int64

	// MuxerPath is the external muxer binary invoked in Muxed mode.
	MuxerPath string
}

// Default returns the baseline option set used unless a flag overrides it.
// Values are picked per DESIGN.md's "Retry/backoff caps and read-ahead
// window" open-question decision.
func Default() Options {
	return Options{
		Mode:                   AudioOnly,
		ReadAhead:              2 << 20, // 2MiB
		RetryAttempts:          3,
		RetryBackoffBase:       250 * time.Millisecond,
		RetryBackoffCap:        4 * time.Second,
		PageSize:               20,
		InMemoryCacheThreshold: 8 << 20, // 8MiB
		MuxerPath:              "ffmpeg",
	}
}
