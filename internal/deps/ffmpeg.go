package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const versionProbeTimeout = 5 * time.Second

// CheckFFmpeg resolves the ffmpeg binary and probes its version banner so
// status output can show exactly which build will run.
func CheckFFmpeg(binary string) Status {
	result := Status{
		Name:        "FFmpeg",
		Description: "Time-stretches synthesized segments during merge",
		Optional:    true,
	}

	name := strings.TrimSpace(binary)
	if name == "" {
		name = "ffmpeg"
	}
	resolved, err := exec.LookPath(name)
	if err != nil {
		result.Command = name
		result.Detail = fmt.Sprintf("binary %q not found", name)
		return result
	}

	result.Command = resolved
	result.Available = true
	if version := probeFFmpegVersion(resolved); version != "" {
		result.Detail = version
	}
	return result
}

func probeFFmpegVersion(binary string) string {
	ctx, cancel := context.WithTimeout(context.Background(), versionProbeTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, binary, "-version").Output()
	if err != nil {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	if !scanner.Scan() {
		return ""
	}
	line := strings.TrimSpace(scanner.Text())
	// First banner line reads "ffmpeg version N.N ...".
	fields := strings.Fields(line)
	if len(fields) >= 3 && fields[1] == "version" {
		return "version " + fields[2]
	}
	return line
}
