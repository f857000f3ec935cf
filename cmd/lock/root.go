package lock

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/ValentinKolb/shmkv/cmd/util"
	"github.com/ValentinKolb/shmkv/lib/common"
	"github.com/ValentinKolb/shmkv/lib/mutex"
	"github.com/ValentinKolb/shmkv/lib/store/segment"
	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"
)

var (
	lockConfig     *common.Config
	acquireTimeout time.Duration
	cleanupAfter   bool

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:               "lock",
		Short:             "Perform named mutex operations",
		PersistentPreRunE: setupLock,
	}

	// keyCmd represents the key command
	keyCmd = &cobra.Command{
		Use:   "key [name|key]",
		Short: "Print the lock key of a name",
		Long: util.WrapString("Print the lock key, its mode and the backend that would be used. " +
			"Decimal numbers are used as manual keys, everything else is hashed."),
		Args: cobra.ExactArgs(1),
		RunE: runKey,
	}

	// runCmd represents the run command
	runCmd = &cobra.Command{
		Use:   "run [name|key] -- [command...]",
		Short: "Run a command while holding a named mutex",
		Long: util.WrapString("Acquire the named mutex, run the command and release the mutex again. " +
			"The exit code of the command is passed through."),
		Args: cobra.MinimumNArgs(2),
		RunE: runRun,
	}

	// destroyCmd represents the destroy command
	destroyCmd = &cobra.Command{
		Use:   "destroy [name|key]",
		Short: "Remove the semaphore and segment of a key from the system",
		Long: util.WrapString("Remove the native semaphore, the native shared memory segment and the lock and " +
			"segment files of a key. Processes still using them get errors; only use this to clean up " +
			"after crashed processes."),
		Args: cobra.ExactArgs(1),
		RunE: runDestroy,
	}
)

func init() {
	// Add subcommands to lock command
	LockCommands.AddCommand(keyCmd)
	LockCommands.AddCommand(runCmd)
	LockCommands.AddCommand(destroyCmd)

	// Add flags specific to run
	runCmd.Flags().DurationVar(&acquireTimeout, "timeout", 0, util.WrapString("Give up acquiring after this duration (0 to wait forever)"))
	runCmd.Flags().BoolVar(&cleanupAfter, "cleanup", false, util.WrapString("Remove lock files created by this process after the command finished"))
}

// setupLock reads the configuration of the lock commands
func setupLock(cmd *cobra.Command, _ []string) error {
	config, err := util.Setup(cmd)
	if err != nil {
		return err
	}
	lockConfig = config
	return nil
}

func runKey(_ *cobra.Command, args []string) error {
	key, mode, err := mutex.ResolveKey(util.ParseLockParam(args[0]))
	if err != nil {
		return err
	}

	fmt.Printf("key:     %s (%d)\n", key, uint32(key))
	fmt.Printf("mode:    %s\n", mode)
	fmt.Printf("backend: %s\n", lockConfig.Backend.Resolve(mutex.HasNativeBackend()))
	return nil
}

func runRun(_ *cobra.Command, args []string) error {
	m, err := mutex.NewNamedMutex(util.ParseLockParam(args[0]), util.MutexOptions(lockConfig))
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Errorf("closing mutex failed: %v", err)
		}
		if cleanupAfter {
			if err := mutex.Cleanup(); err != nil {
				log.Errorf("cleanup failed: %v", err)
			}
		}
	}()

	if err := acquire(m, acquireTimeout); err != nil {
		return err
	}
	log.Debugf("acquired %s, running %v", m.LockKey(), args[1:])

	c := exec.Command(args[1], args[2:]...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	runErr := c.Run()

	if err := m.Release(); err != nil {
		return err
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return &exitCodeError{code: exitErr.ExitCode()}
	}
	return runErr
}

func runDestroy(_ *cobra.Command, args []string) error {
	key, _, err := mutex.ResolveKey(util.ParseLockParam(args[0]))
	if err != nil {
		return err
	}

	var errs []error
	if mutex.HasNativeBackend() {
		errs = append(errs, mutex.Destroy(key), segment.DestroyKey(uint32(key)))
	}
	for _, path := range []string{
		mutex.LockFilePath(lockConfig.Dir, key),
		segment.FilePath(lockConfig.Dir, uint32(key)),
	} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	fmt.Printf("destroyed %s\n", key)
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

var errBusy = errors.New("mutex is held by another process")

// acquire blocks until m is acquired. With a timeout > 0 it polls TryAcquire with
// exponential backoff and gives up after the timeout.
func acquire(m mutex.INamedMutex, timeout time.Duration) error {
	if timeout <= 0 {
		return m.Acquire()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = timeout

	err := backoff.Retry(func() error {
		ok, err := m.TryAcquire()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errBusy
		}
		return nil
	}, b)
	if errors.Is(err, errBusy) {
		return fmt.Errorf("could not acquire %s within %s: %w", m.LockKey(), timeout, err)
	}
	return err
}

// exitCodeError carries the exit code of a command run by "lock run"
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.code)
}

// ExitCode returns the exit code of a command run by "lock run" if err carries one.
func ExitCode(err error) (int, bool) {
	var e *exitCodeError
	if errors.As(err, &e) {
		return e.code, true
	}
	return 0, false
}
