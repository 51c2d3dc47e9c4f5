package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/sealchat/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade all tables",
	Long: `Create or upgrade all tables.

Safe to run repeatedly. Databases created before conversation modes existed
gain the chat_sessions.mode column; old rows read as casual.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := openDB()
		if err != nil {
			return err
		}
		if err := db.Migrate(gdb); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migration complete")
		return nil
	},
}
