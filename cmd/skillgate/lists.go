package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/skillgate/internal/config"
	"github.com/boshu2/skillgate/internal/controls"
	"github.com/boshu2/skillgate/internal/report"
)

var listsFlags struct {
	dest      string
	blacklist string
	whitelist string
	immutable string
}

var listsCmd = &cobra.Command{
	Use:   "lists",
	Short: "Show the current control lists",
	Long:  `Lists prints the deny, allow, and protected lists under the skills home.`,
	Args:  cobra.NoArgs,
	RunE:  runLists,
}

func init() {
	f := listsCmd.Flags()
	f.StringVar(&listsFlags.dest, "dest", "", "Destination skills home (default ~/.codex/skills)")
	f.StringVar(&listsFlags.blacklist, "blacklist", "", "Deny list filename under --dest")
	f.StringVar(&listsFlags.whitelist, "whitelist", "", "Allow list filename under --dest")
	f.StringVar(&listsFlags.immutable, "immutable", "", "Protected list filename under --dest")

	rootCmd.AddCommand(listsCmd)
}

func runLists(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(&config.Run{
		Dest:      listsFlags.dest,
		Blacklist: listsFlags.blacklist,
		Whitelist: listsFlags.whitelist,
		Immutable: listsFlags.immutable,
	})
	if err != nil {
		return err
	}

	// Read-only view; loading as dry-run guarantees no writes.
	store, err := controls.Load(cfg.Dest, controls.Filenames{
		Deny:      cfg.Blacklist,
		Allow:     cfg.Whitelist,
		Protected: cfg.Immutable,
	}, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}

	return report.RenderLists(os.Stdout, store.Snapshot())
}
