package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultFrameRate = 30.0
	defaultTitle     = "trajcut_export"
)

// SegmentForWindow converts a percent window of a clip lasting duration
// seconds into a segment. It reports false when the window is empty or the
// duration unknown.
func SegmentForWindow(name, mediaPath string, duration, startPercent, endPercent float64) (Segment, bool) {
	if duration <= 0 || endPercent <= startPercent {
		return Segment{}, false
	}
	seg := Segment{
		ClipName:  name,
		MediaPath: mediaPath,
		StartMs:   int(math.Round(startPercent * duration * 1000)),
		EndMs:     int(math.Round(endPercent * duration * 1000)),
	}
	return seg, seg.EndMs > seg.StartMs
}

// GenerateEDL renders segments back to back on a single video track.
func GenerateEDL(segments []Segment, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = int(DefaultFrameRate)
	}

	fcm := "FCM: NON-DROP FRAME"
	if math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01 {
		fcm = "FCM: DROP FRAME"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n%s\n\n", title, fcm)

	record := 0
	for i, seg := range segments {
		length := seg.EndMs - seg.StartMs
		fmt.Fprintf(&b, "%03d  %-8s %-5s C        %s %s %s %s\n",
			i+1, "AX", "V",
			timecode(seg.StartMs, fps), timecode(seg.EndMs, fps),
			timecode(record, fps), timecode(record+length, fps))
		fmt.Fprintf(&b, "* FROM CLIP NAME:  %s\n", seg.ClipName)
		fmt.Fprintf(&b, "* MEDIA PATH:  %s\n", seg.MediaPath)
		record += length
	}
	b.WriteString("\n")
	return b.String()
}

// timecode formats ms as HH:MM:SS:FF at fps.
func timecode(ms int, fps int) string {
	frames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	ff := frames % fps
	secs := frames / fps
	return fmt.Sprintf("%02d:%02d:%02d:%02d", secs/3600, secs/60%60, secs%60, ff)
}

// WriteEDL validates req, renders segments and writes <title>.edl into the
// output directory.
func WriteEDL(req Request, segments []Segment) (Result, error) {
	if err := ValidateOutputDir(req.OutputDir); err != nil {
		return Result{}, err
	}
	if len(segments) == 0 {
		return Result{}, ErrNoSegments
	}

	title := SanitizeName(req.Title, 120)
	if title == "" {
		title = defaultTitle
	}
	rate := req.FrameRate
	if rate <= 0 {
		rate = DefaultFrameRate
	}

	out := filepath.Join(req.OutputDir, title+".edl")
	if err := os.WriteFile(out, []byte(GenerateEDL(segments, title, rate)), 0o644); err != nil {
		return Result{}, fmt.Errorf("write edl: %w", err)
	}
	return Result{
		Status:     "ok",
		Format:     "edl",
		OutputPath: out,
		ClipCount:  len(segments),
	}, nil
}
