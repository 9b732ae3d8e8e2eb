package cli

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/harun/vigil/internal/config"
	"github.com/harun/vigil/internal/daemon"
	"github.com/harun/vigil/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	startForeground bool
	startWait       time.Duration
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Vigil daemon service",
	Long: `Start the Vigil daemon service in the background.
The daemon runs enabled monitoring tools, fires scheduled events and
serves the HTTP API used by the other commands.

A .env file in the working directory is loaded first, so settings such as
VIGIL_API_SHARED_SECRET can live there.`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&startForeground, "foreground", "f", false, "run in the foreground instead of detaching")
	startCmd.Flags().DurationVar(&startWait, "wait", 10*time.Second, "how long to wait for a detached daemon to come up")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	if err := loadDotEnv(".env"); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Check if daemon is already running
	pidFile := daemon.PIDFilePath(cfg.DataDir)
	if daemon.IsRunning(pidFile) {
		return fmt.Errorf("daemon is already running (PID file: %s)", pidFile)
	}

	if !startForeground {
		return spawnDetached(cmd, pidFile)
	}
	return runForeground(cfg)
}

// loadDotEnv loads path into the environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func runForeground(cfg *config.Config) error {
	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log, daemon.WithConfigPath(configPathForDisplay()))
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		return err
	}

	d.Wait()
	return nil
}

// spawnDetached re-executes the binary with --foreground and waits for
// the child to write its PID file.
func spawnDetached(cmd *cobra.Command, pidFile string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}

	childArgs := []string{"start", "--foreground"}
	if cfgFile != "" {
		childArgs = append(childArgs, "--config", cfgFile)
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
		childArgs = append(childArgs, "--log-level", logLevel)
	}

	child := exec.Command(exe, childArgs...)
	child.Env = os.Environ()
	detach(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	pid := child.Process.Pid

	exited := make(chan error, 1)
	go func() { exited <- child.Wait() }()

	deadline := time.NewTimer(startWait)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-exited:
			if err == nil {
				err = fmt.Errorf("exited immediately")
			}
			return fmt.Errorf("daemon failed to start: %w (see the log file for details)", err)
		case <-ticker.C:
			if filePID, err := daemon.ReadPID(pidFile); err == nil && filePID == pid {
				fmt.Fprintf(cmd.OutOrStdout(), "Vigil daemon started (PID %d)\n", pid)
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("daemon did not come up within %s (PID %d)", startWait, pid)
		}
	}
}
