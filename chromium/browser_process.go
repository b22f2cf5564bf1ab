package chromium

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/grafana/xk6-headless/log"
	"github.com/grafana/xk6-headless/osext"
	"github.com/grafana/xk6-headless/storage"
)

// terminateTimeout bounds the wait for the process to exit once killed.
const terminateTimeout = 5 * time.Second

// browserProcess is a running browser and the DevTools endpoint it listens
// on.
type browserProcess struct {
	cancel context.CancelFunc

	// The process of the browser.
	process *os.Process
	// processDone is closed once the process exited and its user data
	// directory is removed.
	processDone <-chan struct{}

	// Browser's WebSocket URL to speak CDP
	wsURL string

	logger *log.Logger
}

// command is a started browser command.
type command struct {
	*exec.Cmd
	done   <-chan struct{}
	stderr io.Reader
}

func newBrowserProcess(
	ctx context.Context, path string, args, env []string, dataDir *storage.Dir,
	launchTimeout time.Duration, logger *log.Logger,
) (*browserProcess, error) {
	// The process outlives the launch but not the page context.
	pctx, cancel := context.WithCancel(ctx)
	cmd, err := execute(pctx, path, args, env, dataDir, logger)
	if err != nil {
		cancel()
		return nil, err
	}

	tctx, tcancel := context.WithTimeout(pctx, launchTimeout)
	defer tcancel()
	wsURL, err := parseDevToolsURL(tctx, cmd)
	if err != nil {
		cancel()
		<-cmd.done
		return nil, fmt.Errorf("getting DevTools URL: %w", err)
	}
	logger.Debugf("Browser:newBrowserProcess", "pid:%d wsURL:%q", cmd.Process.Pid, wsURL)

	return &browserProcess{
		cancel:      cancel,
		process:     cmd.Process,
		processDone: cmd.done,
		wsURL:       wsURL,
		logger:      logger,
	}, nil
}

// terminate kills the browser process and waits for it to exit.
func (p *browserProcess) terminate() {
	p.logger.Debugf("Browser:terminate", "pid:%d", p.process.Pid)
	p.cancel()

	select {
	case <-p.processDone:
	case <-time.After(terminateTimeout):
		p.logger.Warnf("Browser:terminate", "pid:%d did not exit within %s", p.process.Pid, terminateTimeout)
	}
}

// Pid returns the browser process ID.
func (p *browserProcess) Pid() int {
	return p.process.Pid
}

func execute(
	ctx context.Context, path string, args, env []string, dataDir *storage.Dir,
	logger *log.Logger,
) (command, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	killAfterParent(cmd)

	// Set up environment variable for process
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return command{}, fmt.Errorf("getting the browser stderr: %w", err)
	}

	// We must start the cmd before calling cmd.Wait, as otherwise the two
	// can run into a data race.
	err = cmd.Start()
	if errors.Is(err, os.ErrNotExist) {
		return command{}, fmt.Errorf("file does not exist: %s", path)
	}
	if err != nil {
		return command{}, fmt.Errorf("starting %s: %w", path, err)
	}
	if ctx.Err() != nil {
		return command{}, fmt.Errorf("%w", ctx.Err())
	}
	pid := cmd.Process.Pid
	osext.Register(ctx, logger, pid)

	done := make(chan struct{})
	go func() {
		defer func() {
			osext.Unregister(pid)
			if err := dataDir.Cleanup(); err != nil {
				logger.Errorf("Browser:execute", "cleaning up the user data directory: %v", err)
			}
			close(done)
		}()

		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			logger.Errorf("Browser:execute",
				"process with PID %d unexpectedly ended: %v", pid, err)
		}
	}()

	return command{Cmd: cmd, done: done, stderr: stderr}, nil
}

// parseDevToolsURL reads the DevTools WebSocket address the browser prints
// on its standard error. When the browser stops writing before printing it,
// the last error it logged is returned.
func parseDevToolsURL(ctx context.Context, cmd command) (string, error) {
	type result struct {
		wsURL string
		err   error
	}
	c := make(chan result, 1)

	go func() {
		const urlPrefix = "DevTools listening on "

		var lastErr string
		scanner := bufio.NewScanner(cmd.stderr)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if strings.HasPrefix(line, urlPrefix) {
				c <- result{wsURL: strings.TrimPrefix(line, urlPrefix)}
				return
			}
			if msg, ok := browserError(line); ok {
				lastErr = msg
			}
		}

		switch err := scanner.Err(); {
		case lastErr != "":
			c <- result{err: errors.New(lastErr)}
		case err != nil:
			c <- result{err: err}
		default:
			c <- result{err: errors.New("browser process ended unexpectedly")}
		}
	}()

	select {
	case r := <-c:
		return r.wsURL, r.err
	case <-cmd.done:
		return "", errors.New("browser process ended unexpectedly")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// browserError returns the message of a line logged by the browser at the
// error level, e.g. "[6497:6497:1013/103521.932979:ERROR:x11.cc(247)] msg".
func browserError(line string) (string, bool) {
	if !strings.HasPrefix(line, "[") || !strings.Contains(line, ":ERROR:") {
		return "", false
	}
	i := strings.Index(line, "] ")
	if i < 0 {
		return "", false
	}
	return strings.TrimSpace(line[i+2:]), true
}
