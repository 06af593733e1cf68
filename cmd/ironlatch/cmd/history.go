package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"

	bboltstorage "github.com/jmcleod/ironlatch/storage/bbolt"
)

var (
	historyDataDir string
	historyLimit   int
	historyJSON    bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the login/logout audit trail",
	Long:  `Commands for inspecting the append-only login and logout history directly from the data directory.`,
}

var historyLoginsCmd = &cobra.Command{
	Use:   "logins",
	Short: "Print login records, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistoryStore()
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.LoginRecords(historyLimit)
		if err != nil {
			return fmt.Errorf("loading login history: %w", err)
		}
		if historyJSON {
			return json.NewEncoder(os.Stdout).Encode(records)
		}
		for _, rec := range records {
			status := "ok"
			if !rec.Success {
				status = "FAIL"
			}
			fmt.Printf("%s  %-4s  %-30s  %s\n",
				rec.CreatedAt.UTC().Format(time.RFC3339), status, rec.Email, rec.IP)
		}
		return nil
	},
}

var historyLogoutsCmd = &cobra.Command{
	Use:   "logouts",
	Short: "Print logout records, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistoryStore()
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.LogoutRecords(historyLimit)
		if err != nil {
			return fmt.Errorf("loading logout history: %w", err)
		}
		if historyJSON {
			return json.NewEncoder(os.Stdout).Encode(records)
		}
		for _, rec := range records {
			fmt.Printf("%s  %-30s  %s\n",
				rec.CreatedAt.UTC().Format(time.RFC3339), rec.Email, rec.IP)
		}
		return nil
	},
}

// openHistoryStore opens the database read-only so inspection never
// contends with a running server.
func openHistoryStore() (*bboltstorage.Store, error) {
	path := historyDataDir + "/ironlatch.db"
	store, err := bboltstorage.NewStoreFromFile(path, &bbolt.Options{
		ReadOnly: true,
		Timeout:  2 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return store, nil
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyLoginsCmd, historyLogoutsCmd)
	historyCmd.PersistentFlags().StringVar(&historyDataDir, "data-dir", "./data", "Directory for persistent data")
	historyCmd.PersistentFlags().IntVar(&historyLimit, "limit", 50, "Maximum records to print")
	historyCmd.PersistentFlags().BoolVar(&historyJSON, "json", false, "Emit JSON instead of a table")
}
