package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zsiec/tsdemux/internal/avbuf"
	"github.com/zsiec/tsdemux/internal/hls"
	"github.com/zsiec/tsdemux/internal/streaminput"
)

const (
	videoArenaSize = 16 << 20
	audioArenaSize = 8 << 20
	maxUpdates     = 1_000_000
)

// runPlaylist drives the HLS orchestrator to completion over a master or
// media playlist URL/path, writing every access unit it produces to
// video.h264 and audio.aac in outDir as they're pulled off the ring.
func runPlaylist(ctx context.Context, log *slog.Logger, url, outDir string, crc bool) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("tsdump: creating output directory: %w", err)
	}

	videoFile, err := os.Create(filepath.Join(outDir, "video.h264"))
	if err != nil {
		return fmt.Errorf("tsdump: creating video output: %w", err)
	}
	defer videoFile.Close()

	audioFile, err := os.Create(filepath.Join(outDir, "audio.aac"))
	if err != nil {
		return fmt.Errorf("tsdump: creating audio output: %w", err)
	}
	defer audioFile.Close()

	input := streaminput.New(ctx)
	videoBuf := avbuf.New(videoArenaSize, 0, nil)
	audioBuf := avbuf.New(audioArenaSize, 0, nil)

	stream := hls.New(input, videoBuf, audioBuf, url, hls.WithLogger(log), hls.WithCRCVerification(crc))

	var videoBytes, audioBytes, videoAUs, audioAUs int
	for i := 0; i < maxUpdates; i++ {
		stream.Update()

		vau, aau := stream.PullAccessUnit()
		if vau != nil {
			if _, err := videoFile.Write(vau.Data); err != nil {
				return fmt.Errorf("tsdump: writing video output: %w", err)
			}
			videoBytes += len(vau.Data)
			videoAUs++
		}
		if aau != nil {
			if _, err := audioFile.Write(aau.Data); err != nil {
				return fmt.Errorf("tsdump: writing audio output: %w", err)
			}
			audioBytes += len(aau.Data)
			audioAUs++
		}

		if stream.Done() {
			if err := stream.Err(); err != nil {
				return fmt.Errorf("tsdump: playback stopped: %w", err)
			}
			break
		}
	}

	log.Info("playlist demuxed",
		"video_bytes", videoBytes, "video_access_units", videoAUs,
		"audio_bytes", audioBytes, "audio_access_units", audioAUs,
		"final_state", stream.State())
	return nil
}
