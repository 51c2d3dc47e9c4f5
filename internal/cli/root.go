// Package cli defines the chatctl admin commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/sealchat/internal/config"
	"github.com/suPer8Hu/sealchat/internal/db"
	"gorm.io/gorm"
)

var dsnFlag string

var rootCmd = &cobra.Command{
	Use:           "chatctl",
	Short:         "Administrative tasks for the sealchat backend",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dsnFlag, "dsn", "", "Database DSN (defaults to DB_DSN)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(createUserCmd)
}

func openDB() (*gorm.DB, error) {
	dsn := dsnFlag
	if dsn == "" {
		dsn = config.Load().DBDSN
	}
	return db.Connect(dsn)
}
