package replay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/BogdanTretyakov/sc-statistic-backend/internal/config"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

var (
	// ErrMalformed marks a replay the decoder could not make sense of.
	ErrMalformed = errors.New("malformed replay")
	// ErrDecoderFailed marks a decoder run that died without judging the replay.
	ErrDecoderFailed = errors.New("decoder failed")
)

// MalformedExitCode is the exit status a decoder uses to reject its input
// without having written anything parseable (EX_DATAERR).
const MalformedExitCode = 65

type Decoder interface {
	Decode(ctx context.Context, path string) (*Replay, error)
}

// ExecDecoder runs an external decoder command with the replay path as its last
// argument. The command writes one JSON document per line to stdout: first
// {"metadata": {...}}, then one block per line.
type ExecDecoder struct {
	command []string
	logger  zerolog.Logger
}

func NewExecDecoder(cfg *config.Config, logger zerolog.Logger) *ExecDecoder {
	return &ExecDecoder{
		command: strings.Fields(cfg.DecoderCmd),
		logger:  logger,
	}
}

type header struct {
	Metadata *Metadata `json:"metadata"`
}

func (d *ExecDecoder) Decode(ctx context.Context, path string) (*Replay, error) {
	if len(d.command) == 0 {
		return nil, errors.New("decoder command is not configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	args := append(append([]string{}, d.command[1:]...), path)
	cmd := exec.CommandContext(ctx, d.command[0], args...)

	var stderr strings.Builder
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open decoder output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start decoder: %w", err)
	}

	s := &execStream{
		cmd:    cmd,
		cancel: cancel,
		dec:    json.NewDecoder(bufio.NewReaderSize(stdout, 64<<10)),
		stderr: &stderr,
	}

	var h header
	err = s.dec.Decode(&h)
	switch {
	case errors.Is(err, io.EOF):
		// nothing on stdout: the exit status decides
		waitErr := s.wait()
		d.logger.Debug().Err(waitErr).Str("file", path).Str("stderr", stderr.String()).Msg("decoder produced no output")
		return nil, s.exitError(waitErr)
	case err != nil || h.Metadata == nil:
		waitErr := s.Close()
		d.logger.Debug().Err(waitErr).Str("file", path).Str("stderr", stderr.String()).Msg("decoder produced no metadata")
		return nil, fmt.Errorf("%w: no metadata for %s", ErrMalformed, path)
	}

	return &Replay{Metadata: *h.Metadata, Blocks: s}, nil
}

type execStream struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	dec    *json.Decoder
	stderr *strings.Builder

	once    sync.Once
	waitErr error
	done    bool
}

func (s *execStream) Next() (Block, error) {
	if s.done {
		return Block{}, io.EOF
	}

	var b Block
	err := s.dec.Decode(&b)
	if err == nil {
		return b, nil
	}

	s.done = true
	if errors.Is(err, io.EOF) {
		if waitErr := s.wait(); waitErr != nil {
			return Block{}, s.exitError(waitErr)
		}
		return Block{}, io.EOF
	}

	s.Close()
	return Block{}, fmt.Errorf("%w: %v", ErrMalformed, err)
}

// exitError classifies a decoder that stopped writing. Only MalformedExitCode
// blames the replay; any other exit, including a clean one with no output,
// is a decoder problem.
func (s *execStream) exitError(waitErr error) error {
	stderr := strings.TrimSpace(s.stderr.String())

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && exitErr.ExitCode() == MalformedExitCode {
		return fmt.Errorf("%w: decoder rejected input: %s", ErrMalformed, stderr)
	}
	if waitErr == nil {
		return fmt.Errorf("%w: no output: %s", ErrDecoderFailed, stderr)
	}
	return fmt.Errorf("%w: %v: %s", ErrDecoderFailed, waitErr, stderr)
}

func (s *execStream) wait() error {
	s.once.Do(func() {
		s.waitErr = s.cmd.Wait()
		s.cancel()
	})
	return s.waitErr
}

// Close stops the decoder if it is still running.
func (s *execStream) Close() error {
	s.done = true
	s.cancel()
	return s.wait()
}
