package providers

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

func base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// subprocessRequest/subprocessResponse implement the line-delimited JSON
// protocol of spec §6: the core writes one {op, args} object per line to the
// child's stdin; the child writes one {ok, result}/{ok, error_kind, message}
// object per line to stdout.
type subprocessRequest struct {
	Op   string `json:"op"`
	Args any    `json:"args"`
}

type subprocessResponse struct {
	OK        bool            `json:"ok"`
	Result    json.RawMessage `json:"result"`
	ErrorKind string          `json:"error_kind"`
	Message   string          `json:"message"`
}

// SubprocessCaptioner is a Captioner backed by an out-of-process model
// runner. The subprocess is restarted on crash with exponential backoff
// (sethvargo/go-retry's sibling cenkalti/backoff/v5 generates the delay
// sequence); repeated restarts within a window open the circuit breaker,
// marking the provider unavailable (spec §6).
type SubprocessCaptioner struct {
	command      string
	args         []string
	modelVersion string

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Scanner
	breaker *CircuitBreaker
	logger  *slog.Logger
}

// NewSubprocessCaptioner constructs a captioner that launches command/args
// lazily on first use.
func NewSubprocessCaptioner(command string, args []string, modelVersion string, logger *slog.Logger) *SubprocessCaptioner {
	return &SubprocessCaptioner{
		command:      command,
		args:         args,
		modelVersion: modelVersion,
		breaker:      NewCircuitBreaker(5, 60*time.Second),
		logger:       logger,
	}
}

func (c *SubprocessCaptioner) ensureStarted(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil && c.cmd.ProcessState == nil {
		return nil
	}
	if c.breaker.IsOpen() {
		return fmt.Errorf("subprocess captioner circuit open: %d consecutive failures", c.breaker.Failures())
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		cmd := exec.CommandContext(ctx, c.command, c.args...)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return struct{}{}, fmt.Errorf("subprocess: stdin pipe: %w", err)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return struct{}{}, fmt.Errorf("subprocess: stdout pipe: %w", err)
		}
		stderrR, err := cmd.StderrPipe()
		if err != nil {
			return struct{}{}, fmt.Errorf("subprocess: stderr pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return struct{}{}, fmt.Errorf("subprocess: start: %w", err)
		}
		go c.drainStderr(stderrR)

		c.cmd = cmd
		c.stdin = stdin
		c.stdout = bufio.NewScanner(stdout)
		c.stdout.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		return struct{}{}, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(3))
	if err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("subprocess: restart exhausted: %w", err)
	}
	return nil
}

func (c *SubprocessCaptioner) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if c.logger != nil {
			c.logger.Warn("subprocess captioner stderr", "line", scanner.Text())
		}
	}
}

func (c *SubprocessCaptioner) call(ctx context.Context, op string, args any) (json.RawMessage, error) {
	if err := c.ensureStarted(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	reqBytes, err := json.Marshal(subprocessRequest{Op: op, Args: args})
	if err != nil {
		return nil, fmt.Errorf("subprocess: marshal request: %w", err)
	}
	if _, err := c.stdin.Write(append(reqBytes, '\n')); err != nil {
		c.breaker.RecordFailure()
		c.cmd = nil
		return nil, fmt.Errorf("subprocess: write request: %w", err)
	}

	if !c.stdout.Scan() {
		c.breaker.RecordFailure()
		c.cmd = nil
		return nil, fmt.Errorf("subprocess: no response (process likely crashed)")
	}

	var resp subprocessResponse
	if err := json.Unmarshal(c.stdout.Bytes(), &resp); err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("subprocess: decode response: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("subprocess: %s: %s", resp.ErrorKind, resp.Message)
	}
	c.breaker.RecordSuccess()
	return resp.Result, nil
}

type captionRequestArgs struct {
	ImageBase64 string `json:"image_base64"`
	MaxLength   int    `json:"max_length"`
	Style       string `json:"style"`
}

type captionResultPayload struct {
	Text         string  `json:"text"`
	Confidence   float64 `json:"confidence"`
	ModelVersion string  `json:"model_version"`
}

// Caption implements Captioner by round-tripping through the subprocess.
func (c *SubprocessCaptioner) Caption(ctx context.Context, imageBytes []byte, opts CaptionOptions) (string, float64, string, error) {
	result, err := c.call(ctx, "caption", captionRequestArgs{
		ImageBase64: base64Encode(imageBytes),
		MaxLength:   opts.MaxLength,
		Style:       string(opts.Style),
	})
	if err != nil {
		return "", 0, "", err
	}
	var payload captionResultPayload
	if err := json.Unmarshal(result, &payload); err != nil {
		return "", 0, "", fmt.Errorf("subprocess: decode caption result: %w", err)
	}
	if payload.ModelVersion == "" {
		payload.ModelVersion = c.modelVersion
	}
	return payload.Text, payload.Confidence, payload.ModelVersion, nil
}

// Health reports the subprocess captioner's circuit-breaker-derived status.
func (c *SubprocessCaptioner) Health(ctx context.Context) Health {
	return Health{
		Status:       c.breaker.StatusValue(),
		ModelVersion: c.modelVersion,
		Device:       "cpu",
		Diagnostics:  fmt.Sprintf("consecutive_failures=%d", c.breaker.Failures()),
	}
}
