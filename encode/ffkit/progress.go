package ffkit

import (
	"strconv"
	"strings"
	"unicode"
)

// Progress is one parsed block of ffmpeg -progress output.
type Progress struct {
	Frame     int64
	FPS       float32
	BitRate   float32 // bits/s
	TotalSize int64
	OutTimeUS int64
	Speed     float32
	// End is true for the terminal block (progress=end).
	End bool
}

var progressKeys = map[string]bool{
	"frame": true, "fps": true, "bitrate": true, "total_size": true,
	"out_time_us": true, "out_time_ms": true, "out_time": true,
	"dup_frames": true, "drop_frames": true, "speed": true,
	"progress": true, "stream_0_0_q": true,
}

func isProgressKey(line string) bool {
	parts := strings.SplitN(line, "=", 2)
	key := strings.TrimSpace(parts[0])
	return progressKeys[key] || strings.HasPrefix(key, "stream_")
}

// ParseProgress folds one key=value line into p. It returns true when the
// line terminates a progress block (the "progress" key), at which point the
// block is complete and should be emitted.
//
// Example block:
//
//	frame=241
//	fps=79.81
//	bitrate= 107.1kbits/s
//	total_size=116071
//	out_time_us=8674000
//	speed=2.87x
//	progress=continue
func ParseProgress(p *Progress, line string) bool {
	parts := strings.SplitN(line, "=", 2)
	if len(parts) != 2 {
		return false
	}
	name := strings.TrimSpace(parts[0])
	rawValue := parts[1]
	value := strings.TrimFunc(rawValue, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.' && r != '-'
	})
	i64, _ := strconv.ParseInt(value, 10, 64)
	f64, _ := strconv.ParseFloat(value, 64)
	f32 := float32(f64)

	switch name {
	case "frame":
		p.Frame = i64
	case "fps":
		p.FPS = f32
	case "bitrate":
		scale := float32(1)
		if strings.HasSuffix(strings.TrimSpace(rawValue), "kbits/s") {
			scale = 1000
		}
		p.BitRate = f32 * scale
	case "total_size":
		p.TotalSize = i64
	case "out_time_us":
		p.OutTimeUS = i64
	case "speed":
		p.Speed = f32
	case "progress":
		p.End = strings.TrimSpace(rawValue) == "end"
		return true
	}
	return false
}
