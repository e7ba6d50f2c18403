package kv

import (
	"fmt"
	"strings"

	"github.com/rkv-db/rkv/lib/rstore"
	"github.com/spf13/cobra"
)

var (
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]
			if err := rpcStore.Put(key, []byte(value)); err != nil {
				return err
			} else {
				fmt.Println("put successfully")
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Long:  "Reads the value for a key. By default the read is linearizable and must be served by the leader; with --local the read is answered from the contacted replica's local state and may lag behind the leader.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			mode := rstore.ReadLinearizable
			if local, _ := cmd.Flags().GetBool("local"); local {
				mode = rstore.ReadLocal
			}
			if resp, ok, err := rpcStore.Get(key, mode); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%v, resp=%s\n", key, ok, resp)
			}
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := rpcStore.Delete(key); err != nil {
				return err
			} else {
				fmt.Println("delete successfully")
			}
			return nil
		},
	}
	txnCmd = &cobra.Command{
		Use:   "txn [op]...",
		Short: "Applies a batch of operations atomically",
		Long:  "Applies a batch of operations atomically. Each op is either 'put:key=value' or 'del:key'. Either every operation becomes visible or none does.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops := make([]rstore.WriteOp, 0, len(args))
			for _, arg := range args {
				switch {
				case strings.HasPrefix(arg, "put:"):
					kv := strings.SplitN(strings.TrimPrefix(arg, "put:"), "=", 2)
					if len(kv) != 2 {
						return fmt.Errorf("invalid put op: %s (expected put:key=value)", arg)
					}
					ops = append(ops, rstore.WriteOp{Key: kv[0], Value: []byte(kv[1])})
				case strings.HasPrefix(arg, "del:"):
					ops = append(ops, rstore.WriteOp{Delete: true, Key: strings.TrimPrefix(arg, "del:")})
				default:
					return fmt.Errorf("invalid op: %s (expected put:key=value or del:key)", arg)
				}
			}
			if err := rpcStore.Txn(ops); err != nil {
				return err
			} else {
				fmt.Printf("txn with %d ops applied successfully\n", len(ops))
			}
			return nil
		},
	}
)

func init() {
	getCmd.Flags().Bool("local", false, "serve the read from the contacted replica without consulting the leader")
}
