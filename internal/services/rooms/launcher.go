package rooms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mcoot/gamelobby/internal/model"
)

// DefaultKillGrace is how long a terminated game server has to exit before it is killed
const DefaultKillGrace = 5 * time.Second

// LaunchSpec describes one game server process
type LaunchSpec struct {
	RoomID     string
	GameID     model.GameID
	Dir        string // installed game directory, used as the working directory
	EntryPoint string // relative to Dir
	Port       int
}

// Process is a running game server
type Process interface {
	PID() int
	// Terminate asks the process to stop without waiting for it
	Terminate() error
	// Done is closed once the process has exited and been reaped
	Done() <-chan struct{}
}

// Launcher starts game server processes
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// ExecLauncher runs the entry point with the leased port as its only argument
type ExecLauncher struct {
	// Interpreters maps entry point extensions (".py") to the program that runs them
	Interpreters map[string]string
	// KillGrace bounds the wait between SIGTERM and SIGKILL
	KillGrace time.Duration
	// Stdout and Stderr receive the game server output; nil discards it
	Stdout io.Writer
	Stderr io.Writer

	logger *slog.Logger
}

// NewExecLauncher creates a launcher that runs .py entry points with pythonInterp
func NewExecLauncher(pythonInterp string, logger *slog.Logger) *ExecLauncher {
	interps := map[string]string{}
	if pythonInterp != "" {
		interps[".py"] = pythonInterp
	}
	return &ExecLauncher{
		Interpreters: interps,
		KillGrace:    DefaultKillGrace,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		logger:       logger.With(slog.String("component", "launcher")),
	}
}

// Ensure ExecLauncher implements Launcher
var _ Launcher = (*ExecLauncher)(nil)

// Launch starts the process and returns once it is running
func (l *ExecLauncher) Launch(ctx context.Context, spec LaunchSpec) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry := filepath.Join(spec.Dir, filepath.FromSlash(spec.EntryPoint))
	if _, err := os.Stat(entry); err != nil {
		return nil, fmt.Errorf("%w: entry point %s: %v", model.ErrSpawnFailed, spec.EntryPoint, err)
	}

	port := strconv.Itoa(spec.Port)
	var cmd *exec.Cmd
	if interp, ok := l.Interpreters[strings.ToLower(filepath.Ext(entry))]; ok {
		cmd = exec.Command(interp, entry, port)
	} else {
		cmd = exec.Command(entry, port)
	}
	cmd.Dir = spec.Dir
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSpawnFailed, err)
	}

	proc := &execProcess{
		cmd:   cmd,
		done:  make(chan struct{}),
		grace: l.KillGrace,
	}
	log := l.logger.With(
		slog.String("room_id", spec.RoomID),
		slog.String("game_id", string(spec.GameID)),
		slog.Int("pid", cmd.Process.Pid),
		slog.Int("port", spec.Port),
	)
	log.Info("game server started", slog.String("entry_point", spec.EntryPoint))

	// Reap in the background so Terminate never blocks
	go func() {
		err := cmd.Wait()
		close(proc.done)
		if err != nil {
			log.Info("game server exited", slog.String("error", err.Error()))
			return
		}
		log.Info("game server exited")
	}()

	return proc, nil
}

type execProcess struct {
	cmd   *exec.Cmd
	done  chan struct{}
	grace time.Duration
	once  sync.Once
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Terminate() error {
	var err error
	p.once.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}

		if sigErr := p.cmd.Process.Signal(syscall.SIGTERM); sigErr != nil {
			if errors.Is(sigErr, os.ErrProcessDone) {
				return
			}
			err = p.cmd.Process.Kill()
			return
		}

		if p.grace > 0 {
			go func() {
				select {
				case <-p.done:
				case <-time.After(p.grace):
					_ = p.cmd.Process.Kill()
				}
			}()
		}
	})
	return err
}
