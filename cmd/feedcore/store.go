package main

import (
	"encoding/json"
	"fmt"

	gorawrfeed "github.com/Keksclan/goRawrFeed"
	"github.com/Keksclan/goRawrFeed/store"
	"github.com/spf13/cobra"
)

// storeCmd groups the store maintenance commands
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect the durable key-value store",
}

var storeKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List keys under the store prefix",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st *store.Store) error {
			keys, err := st.Keys()
			if err != nil {
				return fmt.Errorf("failed to list keys: %w", err)
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		})
	},
}

var storeGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print the JSON value stored under KEY",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st *store.Store) error {
			var v json.RawMessage
			if !st.Get(args[0], &v) {
				return fmt.Errorf("key %q not found", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(v))
			return nil
		})
	},
}

var storeRmCmd = &cobra.Command{
	Use:   "rm KEY...",
	Short: "Delete keys",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st *store.Store) error {
			for _, k := range args {
				st.Remove(k)
			}
			return nil
		})
	},
}

var storeEvictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Evict the oldest quarter of keys under the store prefix",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(st *store.Store) error {
			n := st.EvictOldest()
			fmt.Fprintf(cmd.OutOrStdout(), "evicted %d key(s)\n", n)
			return nil
		})
	},
}

func init() {
	storeCmd.AddCommand(storeKeysCmd, storeGetCmd, storeRmCmd, storeEvictCmd)
}

// withStore opens the configured backend without the rest of the core.
func withStore(fn func(*store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	backend, err := gorawrfeed.OpenBackend(cfg.Backend)
	if err != nil {
		return err
	}
	st, err := store.New(backend, &cfg.Store)
	if err != nil {
		_ = backend.Close()
		return err
	}
	if err := fn(st); err != nil {
		_ = st.Close()
		return err
	}
	return st.Close()
}
