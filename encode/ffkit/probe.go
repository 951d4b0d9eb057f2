package ffkit

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ProbeEncoders runs `ffmpeg -encoders` and returns the set of available
// video encoder names.
//
// Output shape:
//
//	Encoders:
//	 V..... = Video
//	 ...
//	 ------
//	 V....D libx264              libx264 H.264 / AVC ...
//	 V....D libvpx-vp9           libvpx VP9 ...
func ProbeEncoders(ctx context.Context, path string) (map[string]bool, error) {
	out, err := exec.CommandContext(ctx, path, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, fmt.Errorf("ffkit: probe encoders: %w", err)
	}
	return parseEncoders(string(out)), nil
}

func parseEncoders(out string) map[string]bool {
	encoders := map[string]bool{}
	seenSeparator := false

	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !seenSeparator {
			if strings.HasPrefix(line, "---") {
				seenSeparator = true
			}
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		// fields[0] is the capability flags column; 'V' marks video encoders.
		if !strings.HasPrefix(fields[0], "V") {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}
