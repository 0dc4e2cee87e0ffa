package extproc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmsavelyev/chatvault/internal/logging"
	"github.com/dmsavelyev/chatvault/internal/messaging"
)

const lookupTimeout = 30 * time.Second

// Client runs one engine process and adapts its stdio protocol to the
// messaging.Client interface.
type Client struct {
	identityID string
	credsDir   string
	command    string
	logger     logging.Logger

	events chan messaging.Event

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	pending map[string]chan *wireLine
	closed  bool
}

// NewFactory returns a messaging.Factory spawning `command --session <id>
// --creds <dir>` per identity.
func NewFactory(command string, logger logging.Logger) messaging.Factory {
	return func(identityID, credsDir string) messaging.Client {
		return &Client{
			identityID: identityID,
			credsDir:   credsDir,
			command:    command,
			logger:     logger.With("module", "extproc", "identity", identityID),
			events:     make(chan messaging.Event, 64),
			pending:    make(map[string]chan *wireLine),
		}
	}
}

// Initialize spawns the engine process and starts pumping its stdout.
// Lifecycle progress arrives on Events as the engine reports it.
func (c *Client) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil {
		return nil
	}
	if c.closed {
		return errors.New("client already destroyed")
	}

	cmd := exec.Command(c.command, "--session", c.identityID, "--creds", c.credsDir)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("engine stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start engine %s: %w", c.command, err)
	}

	c.cmd = cmd
	c.stdin = stdin

	go c.readLoop(ctx, stdout)
	return nil
}

// readLoop demultiplexes engine stdout: reply lines are routed to their
// pending request, event lines go to the event channel. Returning closes
// the event channel, which the session manager treats as end of stream.
func (c *Client) readLoop(ctx context.Context, stdout io.Reader) {
	defer c.teardown()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var line wireLine
		if err := json.Unmarshal(raw, &line); err != nil {
			c.logger.Warn(ctx, "unparseable engine line", "err", err.Error())
			continue
		}

		if line.Reply != "" {
			c.resolve(&line)
			continue
		}

		ev, err := parseEvent(&line)
		if err != nil {
			c.logger.Warn(ctx, "bad engine event", "err", err.Error())
			continue
		}
		if ev == nil {
			continue
		}

		select {
		case c.events <- ev:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn(ctx, "engine stream error", "err", err.Error())
	}
}

func (c *Client) resolve(line *wireLine) {
	c.mu.Lock()
	ch, ok := c.pending[line.Reply]
	if ok {
		delete(c.pending, line.Reply)
	}
	c.mu.Unlock()
	if ok {
		ch <- line
	}
}

// teardown closes the event channel and fails every pending lookup.
// Idempotent; called from the read loop and from Destroy.
func (c *Client) teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Destroy stops the engine process. The read loop then drains and closes
// the event channel.
func (c *Client) Destroy(ctx context.Context) error {
	c.mu.Lock()
	cmd := c.cmd
	stdin := c.stdin
	c.mu.Unlock()

	if cmd == nil {
		c.teardown()
		return nil
	}

	// closing stdin asks the engine to exit; kill if it lingers
	if stdin != nil {
		_ = stdin.Close()
	}

	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		<-done
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
	}
	return nil
}

func (c *Client) Events() <-chan messaging.Event { return c.events }

// call writes one request and blocks for its reply.
func (c *Client) call(ctx context.Context, op, arg string) (*wireLine, error) {
	req := request{ID: uuid.NewString(), Op: op, Arg: arg}

	ch := make(chan *wireLine, 1)
	c.mu.Lock()
	if c.closed || c.stdin == nil {
		c.mu.Unlock()
		return nil, errors.New("engine not running")
	}
	c.pending[req.ID] = ch
	stdin := c.stdin
	c.mu.Unlock()

	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if _, err := stdin.Write(append(b, '\n')); err != nil {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return nil, fmt.Errorf("write request: %w", err)
	}

	timer := time.NewTimer(lookupTimeout)
	defer timer.Stop()

	select {
	case line, ok := <-ch:
		if !ok {
			return nil, errors.New("engine stopped")
		}
		if line.Error != "" {
			return nil, errors.New(line.Error)
		}
		return line, nil
	case <-timer.C:
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return nil, fmt.Errorf("%s lookup timed out", op)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (c *Client) GetContactByID(ctx context.Context, id string) (*messaging.Contact, error) {
	line, err := c.call(ctx, opContact, id)
	if err != nil {
		return nil, err
	}
	var res contactResult
	if err := json.Unmarshal(line.Result, &res); err != nil {
		return nil, fmt.Errorf("contact reply: %w", err)
	}
	return &messaging.Contact{
		PushName:  res.PushName,
		Name:      res.Name,
		ShortName: res.ShortName,
		Number:    res.Number,
	}, nil
}

func (c *Client) GetChatByID(ctx context.Context, id string) (*messaging.Chat, error) {
	line, err := c.call(ctx, opChat, id)
	if err != nil {
		return nil, err
	}
	var res chatResult
	if err := json.Unmarshal(line.Result, &res); err != nil {
		return nil, fmt.Errorf("chat reply: %w", err)
	}
	return &messaging.Chat{Name: res.Name, FormattedTitle: res.FormattedTitle}, nil
}

func (c *Client) DownloadMedia(ctx context.Context, ref string) (*messaging.Media, error) {
	line, err := c.call(ctx, opMedia, ref)
	if err != nil {
		return nil, err
	}
	if len(line.Result) == 0 || string(line.Result) == "null" {
		return nil, nil
	}
	var res mediaResult
	if err := json.Unmarshal(line.Result, &res); err != nil {
		return nil, fmt.Errorf("media reply: %w", err)
	}
	return &messaging.Media{Data: res.Data, MimeType: res.MimeType, Filename: res.Filename}, nil
}
