package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"insight-report/internal/config"
	"insight-report/internal/storage"
)

var (
	daemonConfigPath  string
	daemonStopTimeout time.Duration
)

// errNotRunning is returned by stop when there is nothing to stop.
var errNotRunning = errors.New("daemon is not running")

func NewDaemonCmd() *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the scheduler in the background (start/stop/restart/status)",
	}
	daemonCmd.PersistentFlags().StringVarP(&daemonConfigPath, "config", "c", "", "Path to config file")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon, waiting for an in-flight report",
		RunE:  runDaemonStop,
	}
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon",
		RunE:  runDaemonRestart,
	}
	for _, c := range []*cobra.Command{stopCmd, restartCmd} {
		c.Flags().DurationVar(&daemonStopTimeout, "timeout", 30*time.Second,
			"How long to wait for a running generation before killing the process")
	}

	daemonCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the scheduler as a background process",
		RunE:  runDaemonStart,
	})
	daemonCmd.AddCommand(stopCmd)
	daemonCmd.AddCommand(restartCmd)
	daemonCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the daemon process and generation lease",
		RunE:  runDaemonStatus,
	})

	return daemonCmd
}

// pidFile records the daemon's process id under ~/.insight-report.
type pidFile struct {
	path string
}

func defaultPidFile() pidFile {
	home, err := os.UserHomeDir()
	if err != nil {
		return pidFile{path: "insight-report.pid"}
	}
	return pidFile{path: filepath.Join(home, ".insight-report", "insight-report.pid")}
}

func (p pidFile) read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func (p pidFile) write(pid int) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(p.path, []byte(strconv.Itoa(pid)), 0644)
}

func (p pidFile) remove() {
	_ = os.Remove(p.path)
}

// running returns the live daemon pid, clearing a stale file.
func (p pidFile) running() (int, bool) {
	pid, err := p.read()
	if err != nil {
		return 0, false
	}
	if !processAlive(pid) {
		p.remove()
		return pid, false
	}
	return pid, true
}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// consoleFile is where the detached process's stdout and stderr go. The
// logger itself writes to the rotating log and skips stdout when it is a
// regular file, so this only collects panics and startup errors.
func consoleFile() string {
	logPath := filepath.Join(".", "insight-report.log")
	if cfg, err := config.Load(daemonConfigPath); err == nil {
		logPath = cfg.Storage.LogPath
	}
	return strings.TrimSuffix(logPath, filepath.Ext(logPath)) + ".out"
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	pids := defaultPidFile()
	if pid, ok := pids.running(); ok {
		return fmt.Errorf("daemon is already running (PID: %d)", pid)
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	outPath := consoleFile()
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open console file: %w", err)
	}
	defer out.Close()

	startArgs := []string{"start"}
	if daemonConfigPath != "" {
		startArgs = append(startArgs, "--config", daemonConfigPath)
	}

	child := exec.Command(executable, startArgs...)
	child.Stdout = out
	child.Stderr = out
	child.Dir, _ = os.Getwd()
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	if err := pids.write(child.Process.Pid); err != nil {
		_ = child.Process.Kill()
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	_ = child.Process.Release()

	fmt.Printf("Daemon started (PID: %d, console: %s)\n", child.Process.Pid, outPath)
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	pids := defaultPidFile()
	pid, ok := pids.running()
	if !ok {
		return errNotRunning
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	// SIGTERM lets the scheduler finish the report it is generating
	deadline := time.Now().Add(daemonStopTimeout)
	for time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)
		if !processAlive(pid) {
			pids.remove()
			fmt.Printf("Daemon stopped (PID: %d)\n", pid)
			return nil
		}
	}

	_ = process.Signal(syscall.SIGKILL)
	time.Sleep(500 * time.Millisecond)
	pids.remove()
	fmt.Printf("Daemon killed after %s (PID: %d)\n", daemonStopTimeout, pid)
	fmt.Println("A report may have been interrupted; run 'insight-report recover' to release it.")
	return nil
}

func runDaemonRestart(cmd *cobra.Command, args []string) error {
	if err := runDaemonStop(cmd, args); err != nil && !errors.Is(err, errNotRunning) {
		return err
	}
	return runDaemonStart(cmd, args)
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	pids := defaultPidFile()
	if pid, ok := pids.running(); ok {
		fmt.Printf("Daemon: running (PID: %d, pid file: %s)\n", pid, pids.path)
	} else {
		fmt.Println("Daemon: not running")
	}

	_, st, err := openStorage(daemonConfigPath)
	if err != nil {
		return err
	}
	defer st.Close()

	lease, err := st.GetLease(storage.GenerationLeaseKey)
	if err != nil {
		return fmt.Errorf("failed to read lease: %w", err)
	}
	if lease == nil {
		fmt.Println("Generation: idle")
		return nil
	}
	fmt.Printf("Generation: report %s since %s\n", lease.Holder, lease.AcquiredAt.Format(time.RFC3339))
	return nil
}
