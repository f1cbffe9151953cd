package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dealscope/valuation-engine/pkg/auth"
)

var (
	tokenSecret string
	tokenUserID string
	tokenName   string
	tokenRoles  []string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a JWT for the valuation API",
	Long: `Generate a signed JWT for local development and scripting. The
secret must match the API server's auth.jwt_secret.

Examples:
  valuationctl token --secret dev-secret --role admin
  valuationctl token --secret dev-secret --user-id 4f9d5c1e-... --ttl 24h`,
	Run: func(cmd *cobra.Command, args []string) {
		if tokenSecret == "" {
			tokenSecret = os.Getenv("VALUATION_AUTH_JWT_SECRET")
		}
		if tokenSecret == "" {
			fmt.Println("Error: --secret or VALUATION_AUTH_JWT_SECRET is required")
			os.Exit(1)
		}

		userID := uuid.New()
		if tokenUserID != "" {
			parsed, err := uuid.Parse(tokenUserID)
			if err != nil {
				fmt.Printf("Error: invalid user id %q\n", tokenUserID)
				os.Exit(1)
			}
			userID = parsed
		}

		manager := auth.NewJWTManager(tokenSecret, tokenTTL)
		token, err := manager.GenerateToken(userID, tokenName, tokenRoles)
		if err != nil {
			fmt.Printf("Error generating token: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(token)
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "JWT signing secret")
	tokenCmd.Flags().StringVar(&tokenUserID, "user-id", "", "Subject user id (random when omitted)")
	tokenCmd.Flags().StringVar(&tokenName, "name", "cli", "Subject display name")
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "role", []string{"admin"}, "Roles to embed in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
