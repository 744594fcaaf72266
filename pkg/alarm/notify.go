package alarm

import (
	"fmt"
	"strings"
)

// BuildMarkdown renders the notification title and body for one event.
// The body embeds the evidence image (when resolved) plus the key
// attributes the edge boxes attach to detections.
func (a *Alarm) BuildMarkdown(ev *Event, imageURL string) (title, text string) {
	algo := AlgoName(ev.Type, ev.TypeName)
	title = fmt.Sprintf("[%s] alarm: %s", a.Cfg.AppName, algo)

	signedAt := ev.SignedAt(a.now()).Format("2006-01-02 15:04:05")
	cam := ev.DeviceName
	if cam == "" {
		cam = UnknownID
	}
	box := ev.BoxName
	if box == "" {
		box = UnknownID
	}
	boxID := ev.BoxID
	if boxID == "" {
		boxID = UnknownID
	}

	var lines []string
	if imageURL != "" {
		lines = append(lines, fmt.Sprintf("![snap](%s)\n", imageURL))
	}
	lines = append(lines,
		fmt.Sprintf("- **time**: `%s`", signedAt),
		fmt.Sprintf("- **algo**: `%s`", algo),
		fmt.Sprintf("- **camera**: `%s / %s (boxId=%s)`", cam, box, boxID),
	)
	if ev.Score != "" {
		lines = append(lines, fmt.Sprintf("- **score**: `%s`", ev.Score))
	}

	var attrs []string
	for _, attr := range []struct {
		key   string
		value FlexString
	}{
		{"age", ev.Age},
		{"gender", ev.Gender},
		{"mask", ev.Mask},
		{"count", ev.Count},
	} {
		if attr.value != "" {
			attrs = append(attrs, fmt.Sprintf("%s=%s", attr.key, attr.value))
		}
	}
	if len(attrs) > 0 {
		lines = append(lines, fmt.Sprintf("- **attr**: `%s`", strings.Join(attrs, ", ")))
	}

	return title, strings.Join(lines, "\n")
}
