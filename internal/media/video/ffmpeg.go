package video

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"vidlens/internal/media/ffprobe"
	"vidlens/internal/services"
)

const stderrLimit = 4096

// FFmpegOpener probes files with ffprobe and decodes frames through an ffmpeg
// rawvideo pipe.
type FFmpegOpener struct {
	FFmpegBinary  string
	FFprobeBinary string
	ScaleWidth    int
}

// Probe reads stream metadata with ffprobe without starting a decoder.
func (o *FFmpegOpener) Probe(ctx context.Context, path string) (Info, error) {
	info, _, err := o.probe(ctx, path)
	return info, err
}

// Open probes path and starts the decoder process.
func (o *FFmpegOpener) Open(ctx context.Context, path string) (Source, error) {
	info, stream, err := o.probe(ctx, path)
	if err != nil {
		return nil, err
	}
	width, height := info.Width, info.Height

	binary := strings.TrimSpace(o.FFmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", path,
		"-map", "0:" + strconv.Itoa(stream.Index),
		"-an", "-sn", "-dn",
	}
	if width != stream.Width || height != stream.Height {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", width, height))
	}
	args = append(args, "-f", "rawvideo", "-pix_fmt", "rgba", "-")

	cmd := exec.Command(binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "video", "ffmpeg pipe", "", err)
	}
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrVideoUnreadable, "video", "ffmpeg start", binary, err)
	}

	frameSize := width * height * 4
	return &ffmpegSource{
		info:      info,
		cmd:       cmd,
		reader:    bufio.NewReaderSize(stdout, min(frameSize, 1<<20)),
		stderr:    stderr,
		frameSize: frameSize,
	}, nil
}

func (o *FFmpegOpener) probe(ctx context.Context, path string) (Info, ffprobe.Stream, error) {
	if _, err := os.Stat(path); err != nil {
		return Info{}, ffprobe.Stream{}, services.Wrap(services.ErrVideoUnreadable, "video", "open", path, err)
	}
	probe, err := ffprobe.Inspect(ctx, o.FFprobeBinary, path)
	if err != nil {
		// A killed ffprobe says nothing about the file.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Info{}, ffprobe.Stream{}, services.Wrap(services.ErrTransient, "video", "probe", "interrupted", fmt.Errorf("%w: %w", ctxErr, err))
		}
		return Info{}, ffprobe.Stream{}, services.Wrap(services.ErrVideoUnreadable, "video", "probe", path, err)
	}
	stream, ok := probe.PrimaryVideo()
	if !ok {
		return Info{}, ffprobe.Stream{}, services.Wrap(services.ErrVideoUnreadable, "video", "probe", "no video stream in "+path, nil)
	}
	if stream.Width <= 0 || stream.Height <= 0 {
		return Info{}, ffprobe.Stream{}, services.Wrap(services.ErrVideoUnreadable, "video", "probe",
			fmt.Sprintf("invalid dimensions %dx%d", stream.Width, stream.Height), nil)
	}
	width, height := scaledSize(stream.Width, stream.Height, o.ScaleWidth)
	return Info{
		Path:       path,
		Codec:      stream.CodecName,
		FPS:        stream.FrameRate(),
		FrameCount: stream.FrameCount(probe.DurationSeconds()),
		Width:      width,
		Height:     height,
		HasAudio:   probe.HasAudio(),
	}, stream, nil
}

type ffmpegSource struct {
	info      Info
	cmd       *exec.Cmd
	reader    *bufio.Reader
	stderr    *tailBuffer
	frameSize int
	done      bool

	waitOnce sync.Once
	waitErr  error
}

func (s *ffmpegSource) Info() Info { return s.info }

func (s *ffmpegSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.done {
		return nil, io.EOF
	}
	buf := make([]byte, s.frameSize)
	_, err := io.ReadFull(s.reader, buf)
	switch {
	case err == nil:
		return &image.RGBA{
			Pix:    buf,
			Stride: s.info.Width * 4,
			Rect:   image.Rect(0, 0, s.info.Width, s.info.Height),
		}, nil
	case errors.Is(err, io.EOF):
		s.done = true
		if waitErr := s.wait(); waitErr != nil {
			return nil, s.decodeError("ffmpeg exited", waitErr)
		}
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
		_ = s.wait()
		return nil, s.decodeError("partial frame", err)
	default:
		s.done = true
		return nil, s.decodeError("read frame", err)
	}
}

func (s *ffmpegSource) decodeError(op string, err error) error {
	detail := strings.TrimSpace(s.stderr.String())
	return services.Wrap(services.ErrExternalTool, "video", op, detail, err)
}

func (s *ffmpegSource) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

// Close stops the decoder if it is still running and reaps the process.
func (s *ffmpegSource) Close() error {
	if !s.done && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.done = true
	err := s.wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// killed or failed; Next already reported decode failures
		return nil
	}
	return err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if over := len(b.data) - b.limit; over > 0 {
		b.data = append(b.data[:0], b.data[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}
