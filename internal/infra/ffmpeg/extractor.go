package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-frame-ingest/internal/domain/port"
	"go.uber.org/zap"
)

type Extractor struct {
	ffmpegBin  string
	ffprobeBin string
	format     string
	logger     *zap.Logger
}

func NewExtractor(ffmpegBin, ffprobeBin, format string, logger *zap.Logger) *Extractor {
	return &Extractor{ffmpegBin: ffmpegBin, ffprobeBin: ffprobeBin, format: format, logger: logger}
}

// ExtractFrames writes one frame every interval seconds of videoPath into
// outputDir as frame_0001.<format>, frame_0002.<format>, ...
func (e *Extractor) ExtractFrames(ctx context.Context, videoPath string, outputDir string, interval float64) (*port.FrameExtractionResult, error) {
	if !(interval > 0) {
		return nil, fmt.Errorf("invalid capture interval %v", interval)
	}

	duration, err := e.getVideoDuration(ctx, videoPath)
	if err != nil {
		e.logger.Warn("could not get video duration", zap.Error(err))
	}

	framePattern := filepath.Join(outputDir, fmt.Sprintf("frame_%%04d.%s", e.format))
	cmd := exec.CommandContext(ctx, e.ffmpegBin,
		"-i", videoPath,
		"-vf", FPSFilter(interval),
		"-y",
		framePattern,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg error: %w, output: %s", err, string(output))
	}

	globPattern := filepath.Join(outputDir, fmt.Sprintf("frame_*.%s", e.format))
	frames, err := filepath.Glob(globPattern)
	if err != nil {
		return nil, fmt.Errorf("glob frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames extracted from video")
	}
	sortByFrameNumber(frames)

	e.logger.Info("frames extracted",
		zap.Int("count", len(frames)),
		zap.Float64("interval", interval),
		zap.Float64("video_duration", duration),
	)

	return &port.FrameExtractionResult{
		FramePaths:    frames,
		FrameCount:    len(frames),
		VideoDuration: duration,
	}, nil
}

// sortByFrameNumber orders frame paths by the number ffmpeg wrote into
// the name. Past frame_9999 the names widen, so string order is wrong.
func sortByFrameNumber(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		return frameNumber(paths[i]) < frameNumber(paths[j])
	})
}

func frameNumber(path string) int {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	n, err := strconv.Atoi(strings.TrimPrefix(base, "frame_"))
	if err != nil {
		return 0
	}
	return n
}

// FPSFilter is the ffmpeg video filter capturing one frame per interval seconds.
func FPSFilter(interval float64) string {
	return "fps=1/" + strconv.FormatFloat(interval, 'f', -1, 64)
}

func (e *Extractor) getVideoDuration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, e.ffprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	durationStr := strings.TrimSpace(string(output))
	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}
	return duration, nil
}
