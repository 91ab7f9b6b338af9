package cmd

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cinderhouse/watchkeeper/internal/core/auth"
	"github.com/cinderhouse/watchkeeper/internal/core/config"
	"github.com/cinderhouse/watchkeeper/internal/core/db"
	"github.com/cinderhouse/watchkeeper/internal/types"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Provision an API key for a project",
	Long: `Generates an API key signed with a configured HMAC secret and stores
its hash. The key itself is printed once and never stored.`,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().String("project-id", "", "project the key grants access to (generated when empty)")
	keygenCmd.Flags().String("secret-id", "", "HMAC secret id to sign with (sole configured secret when empty)")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set WK_HMAC_SECRET environment variable)")
	}

	secretID, _ := cmd.Flags().GetString("secret-id")
	if secretID == "" {
		if len(secrets) > 1 {
			return fmt.Errorf("multiple HMAC secrets configured, --secret-id required")
		}
		for id := range secrets {
			secretID = id
		}
	}
	secret, ok := secrets[secretID]
	if !ok {
		return fmt.Errorf("unknown secret id %q", secretID)
	}

	projectID := types.NewProjectID()
	if flag, _ := cmd.Flags().GetString("project-id"); flag != "" {
		projectID, err = types.ParseProjectID(flag)
		if err != nil {
			return fmt.Errorf("invalid project id: %w", err)
		}
	}

	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return fmt.Errorf("failed to generate key material: %w", err)
	}

	apiKey := auth.FormatAPIKey(secretID, hex.EncodeToString(random))
	keyHash := auth.ComputeHMAC(secret, apiKey)

	_, err = queries.Exec("insert-api-key",
		uuid.Must(uuid.NewV7()).String(), string(projectID), secretID, keyHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store key hash: %w", err)
	}

	fmt.Printf("project_id: %s\napi_key:    %s\n", projectID, apiKey)
	return nil
}
