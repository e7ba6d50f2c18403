package member

import (
	"fmt"
	"sort"

	"github.com/rkv-db/rkv/cmd/util"
	"github.com/rkv-db/rkv/lib/rstore"
	"github.com/rkv-db/rkv/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcStore rstore.IStore

	// MemberCommands represents the cluster membership command group
	MemberCommands = &cobra.Command{
		Use:               "member",
		Short:             "Inspect and change the cluster membership",
		PersistentPreRunE: setupMemberClient,
	}

	addCmd = &cobra.Command{
		Use:   "add [id] [raft-address]",
		Short: "Adds a replica to the cluster",
		Long:  "Adds a replica to the cluster. The command returns once the new configuration is committed; the new replica catches up via log replication or a snapshot.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.AddMember(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("member %s added successfully\n", args[0])
			return nil
		},
	}
	removeCmd = &cobra.Command{
		Use:   "remove [id]",
		Short: "Removes a replica from the cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.RemoveMember(args[0]); err != nil {
				return err
			}
			fmt.Printf("member %s removed successfully\n", args[0])
			return nil
		},
	}
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Prints the consensus status of the contacted replica",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := rpcStore.Status()
			if err != nil {
				return err
			}

			fmt.Printf("node:          %s (%s)\n", status.ID, status.Role)
			fmt.Printf("term:          %d\n", status.Term)
			if status.LeaderID != "" {
				fmt.Printf("leader:        %s (%s)\n", status.LeaderID, status.LeaderAddr)
			} else {
				fmt.Printf("leader:        unknown\n")
			}
			fmt.Printf("commit index:  %d\n", status.CommitIndex)
			fmt.Printf("applied index: %d\n", status.AppliedIndex)

			// Sort member IDs for consistent output
			var ids []string
			for id := range status.Configuration.Members {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			fmt.Println("members:")
			for _, id := range ids {
				fmt.Printf("  %s: %s\n", id, status.Configuration.Members[id])
			}
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the member command
	util.SetupRPCClientFlags(MemberCommands)

	// Add subcommands
	MemberCommands.AddCommand(addCmd)
	MemberCommands.AddCommand(removeCmd)
	MemberCommands.AddCommand(statusCmd)
}

// setupMemberClient initializes the RPC store client
func setupMemberClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the store client
	rpcStore, err = client.NewRPCStore(
		*config,
		t,
		s,
	)

	return err
}
