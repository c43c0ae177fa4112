// Package video opens video files as frame sources for analysis.
//
// A Source reports container metadata (frame rate, frame count, dimensions,
// duration) and yields decoded frames in presentation order until io.EOF. The
// default implementation probes with ffprobe and streams raw RGBA frames from
// an ffmpeg child process; builds tagged gocv can decode in-process through
// OpenCV instead. Each Source is owned by a single caller and must be closed.
package video
