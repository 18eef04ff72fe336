// Package export writes the picked composition as an edit decision list so
// the cut can be rebuilt from the source footage in an NLE.
package export

// Segment is one picked clip's used window of source footage.
type Segment struct {
	ClipName  string
	MediaPath string
	StartMs   int
	EndMs     int
}

// Request configures an EDL export.
type Request struct {
	Title     string  `json:"title"`
	FrameRate float64 `json:"frame_rate"`
	OutputDir string  `json:"output_dir"`
}

// Result describes a written EDL.
type Result struct {
	Status       string   `json:"status"`
	Format       string   `json:"format"`
	OutputPath   string   `json:"output_path"`
	ClipCount    int      `json:"clip_count"`
	SkippedClips []string `json:"skipped_clips"`
}
