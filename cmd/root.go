package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/shmkv/cmd/kv"
	"github.com/ValentinKolb/shmkv/cmd/lock"
	"github.com/ValentinKolb/shmkv/cmd/util"
	"github.com/ValentinKolb/shmkv/lib/mutex"
	"github.com/ValentinKolb/shmkv/lib/store/segment"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "shmkv",
		Short: "cross-process named mutexes and shared key-value store",
		Long: fmt.Sprintf(`shmkv (v%s)

Named mutexes and a shared-memory key-value store for cooperating
processes on one host. Uses SysV semaphores and shared memory where
available and falls back to lock and segment files otherwise.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of shmkv",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("shmkv v%s\n", Version)
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Print which backends are available on this host",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("native semaphores:    %t\n", mutex.HasNativeBackend())
			fmt.Printf("native shared memory: %t\n", segment.HasNativeBackend())
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(infoCmd)

	// Add Flags
	util.SetupGlobalFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	err := RootCmd.Execute()
	util.RunExitHooks()
	if err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode returns the exit code of a command run by "lock run", or 1.
func exitCode(err error) int {
	if code, ok := lock.ExitCode(err); ok {
		return code
	}
	return 1
}
