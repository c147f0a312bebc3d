// Package shutdown handles process signals and fatal startup aborts.
package shutdown

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"dealerchat/pkg/logger"
)

type exitRequest struct {
	Time      string            `json:"time"`
	Reason    string            `json:"reason"`
	Cmd       string            `json:"cmd"`
	CrashPath string            `json:"crash_path,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Abort logs the failure, writes diagnostics under dbPath and exits after
// delaySeconds (default 3) so logs have time to flush.
func Abort(contextMsg string, err error, dbPath string, delaySeconds ...int) {
	delay := 3
	if len(delaySeconds) > 0 && delaySeconds[0] >= 0 {
		delay = delaySeconds[0]
	}
	logger.Error("startup_fatal", "msg", contextMsg, "error", err)
	dumpPath, reqPath, derr := AbortWithDiagnostics(dbPath, contextMsg, err)
	if derr != nil {
		logger.Error("abort_with_diagnostics_failed", "error", derr)
		fmt.Fprintf(os.Stderr, "FAILED TO WRITE CRASH DUMP: %v\n", derr)
	} else {
		logger.Info("wrote_crash_dump", "path", dumpPath, "request", reqPath)
		fmt.Fprintf(os.Stderr, "CRASH DUMP WRITTEN: %s\n", dumpPath)
	}
	for i := delay; i > 0; i-- {
		logger.Info("exiting_in_seconds", "seconds", i)
		time.Sleep(time.Second)
	}
	os.Exit(2)
}

// AbortWithDiagnostics writes a crash dump (error, environment keys,
// goroutine stacks) and an abort request referencing it.
func AbortWithDiagnostics(dbPath, reason string, err error) (string, string, error) {
	crashDir := "./crash"
	abortDir := "./abort"
	if dbPath != "" {
		crashDir = filepath.Join(dbPath, "state", "crash")
		abortDir = filepath.Join(dbPath, "state", "abort")
	}
	for _, d := range []string{crashDir, abortDir} {
		if e := os.MkdirAll(d, 0o700); e != nil {
			return "", "", fmt.Errorf("failed to create %s: %w", d, e)
		}
	}

	ts := time.Now().UnixNano()
	dumpPath := filepath.Join(crashDir, fmt.Sprintf("crash-%d.log", ts))
	err2 := writeAtomic(crashDir, dumpPath, func(f *os.File) error {
		fmt.Fprintf(f, "time: %s\n", time.Now().UTC().Format(time.RFC3339))
		fmt.Fprintf(f, "reason: %s\n", reason)
		fmt.Fprintf(f, "error: %v\n", err)
		// Values are omitted; secrets such as the JWT key live in the env.
		fmt.Fprintf(f, "\n--- environ (keys) ---\n")
		for _, e := range os.Environ() {
			for i := 0; i < len(e); i++ {
				if e[i] == '=' {
					e = e[:i]
					break
				}
			}
			fmt.Fprintln(f, e)
		}
		fmt.Fprintf(f, "\n--- goroutine stacks ---\n")
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		_, werr := f.Write(buf[:n])
		return werr
	})
	if err2 != nil {
		return "", "", err2
	}

	req := exitRequest{
		Time:      time.Now().UTC().Format(time.RFC3339),
		Reason:    reason,
		Cmd:       "crash",
		CrashPath: dumpPath,
		Meta:      map[string]string{"pid": fmt.Sprintf("%d", os.Getpid())},
	}
	reqPath := filepath.Join(abortDir, fmt.Sprintf("req-%d.json", ts))
	if err := writeAtomic(abortDir, reqPath, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(req)
	}); err != nil {
		return dumpPath, "", err
	}
	return dumpPath, reqPath, nil
}

func writeAtomic(dir, dst string, fill func(*os.File) error) error {
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	name := f.Name()
	defer func() { _ = os.Remove(name) }()
	if err := fill(f); err != nil {
		f.Close()
		return err
	}
	_ = f.Sync()
	f.Close()
	if err := os.Rename(name, dst); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", dst, err)
	}
	_ = os.Chmod(dst, 0o600)
	return nil
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigc:
			logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigc)
	}()
	return ctx, cancel
}
