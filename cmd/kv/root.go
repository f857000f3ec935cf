package kv

import (
	"github.com/ValentinKolb/shmkv/cmd/util"
	"github.com/ValentinKolb/shmkv/lib/common"
	"github.com/ValentinKolb/shmkv/lib/mutex"
	"github.com/ValentinKolb/shmkv/lib/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// noStore marks commands that do not need an open store
const noStore = "no-store"

var (
	kvConfig *common.Config
	kvMutex  mutex.INamedMutex
	kvStore  store.ISharedStore

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform shared store operations",
		PersistentPreRunE: setupKVStore,
	}
)

func init() {
	// Add flags to the KV command
	KeyValueCommands.PersistentFlags().String("segment", "shmkv", util.WrapString("Name or numeric key of the segment (and its mutex)"))
	KeyValueCommands.PersistentFlags().Int("size", 0, util.WrapString("Size hint in bytes for a newly created segment (0 for the default size, see 'kv bytes')"))

	// Add subcommands
	KeyValueCommands.AddCommand(putCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(rmCmd)
	KeyValueCommands.AddCommand(addCmd)
	KeyValueCommands.AddCommand(bytesCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVStore opens the mutex and the store of the selected segment
func setupKVStore(cmd *cobra.Command, _ []string) error {
	config, err := util.Setup(cmd)
	if err != nil {
		return err
	}
	kvConfig = config

	if _, skip := cmd.Annotations[noStore]; skip {
		return nil
	}

	kvMutex, kvStore, err = openStore(config)
	if err != nil {
		return err
	}
	util.AtExit(func() {
		if err := kvStore.Close(); err != nil {
			log.Errorf("closing store failed: %v", err)
		}
		if err := kvMutex.Close(); err != nil {
			log.Errorf("closing mutex failed: %v", err)
		}
	})
	return nil
}

// openStore opens a new mutex and store instance of the selected segment
func openStore(config *common.Config) (mutex.INamedMutex, store.ISharedStore, error) {
	m, err := mutex.NewNamedMutex(util.ParseLockParam(viper.GetString("segment")), util.MutexOptions(config))
	if err != nil {
		return nil, nil, err
	}

	opts, err := util.StoreOptions(config)
	if err != nil {
		_ = m.Close()
		return nil, nil, err
	}

	s, err := store.NewSharedStore(m, opts)
	if err != nil {
		_ = m.Close()
		return nil, nil, err
	}
	log.Debugf("opened segment %s (%s)", s.SegmentKey(), m.Backend())
	return m, s, nil
}
