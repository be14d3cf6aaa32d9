package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// Probe answers the live question by asking streamlink whether the URL has any
// streams. Used when no Twitch API credentials are configured: `streamlink
// --json <url>` prints a JSON document whose "streams" object is empty (or
// carries an "error" field) for offline channels.
type Probe struct {
	// Binary is the streamlink executable; defaults to "streamlink".
	Binary string
}

// Live reports whether the URL currently resolves to at least one stream.
// streamlink exits non-zero for offline channels, so the exit code alone is
// not an error; only unparseable output is.
func (p *Probe) Live(ctx context.Context, url string) (bool, error) {
	bin := p.Binary
	if bin == "" {
		bin = "streamlink"
	}
	cmd := exec.CommandContext(ctx, bin, "--json", url)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	runErr := cmd.Run()

	var body struct {
		Error   string                     `json:"error"`
		Streams map[string]json.RawMessage `json:"streams"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &body); err != nil {
		if runErr != nil {
			return false, fmt.Errorf("streamlink probe: %w", runErr)
		}
		return false, fmt.Errorf("streamlink probe: parse output: %w", err)
	}
	if body.Error != "" {
		return false, nil
	}
	return len(body.Streams) > 0, nil
}
