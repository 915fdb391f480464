package stream

import (
	"os/exec"
	"path/filepath"
	"syscall"
)

// Artifact names written by the transcoder inside a stream directory.
const (
	PlaylistName   = "index.m3u8"
	SegmentPattern = "seg_%04d.ts"
)

// CommandFunc builds the (unstarted) transcoder command for source writing into dir.
type CommandFunc func(source, dir string) *exec.Cmd

// FFmpegArgs returns the fixed ffmpeg argument list: RTSP over TCP, no input
// buffering, video only, x264 veryfast/zerolatency with a 25 frame GOP, and
// 2s HLS segments in a rolling window of 5 with program date time tags.
func FFmpegArgs(source, dir string) []string {
	return []string{
		"-rtsp_transport", "tcp",
		"-i", source,
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-an",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-g", "25",
		"-sc_threshold", "0",
		"-f", "hls",
		"-hls_time", "2",
		"-hls_list_size", "5",
		"-hls_flags", "delete_segments+program_date_time",
		"-hls_segment_filename", filepath.Join(dir, SegmentPattern),
		filepath.Join(dir, PlaylistName),
	}
}

// FFmpegCommand returns a CommandFunc running binary with FFmpegArgs.
// The child gets its own process group so a terminal interrupt aimed at the
// server does not reach it; shutdown terminates it explicitly.
func FFmpegCommand(binary string) CommandFunc {
	return func(source, dir string) *exec.Cmd {
		cmd := exec.Command(binary, FFmpegArgs(source, dir)...)
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		return cmd
	}
}
