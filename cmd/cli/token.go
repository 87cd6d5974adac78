package cli

import (
	"fmt"
	"time"

	"chatdesk/internal/config"
	"chatdesk/internal/middleware"
	"chatdesk/internal/models"

	"github.com/spf13/cobra"
)

var (
	flagSubject  string
	flagTenant   string
	flagRole     string
	flagTTLMin   int
	flagNoExpiry bool
)

// tokenCmd generates an HS256 JWT for testing/admin usage.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a JWT (HS256) for API authentication",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		secret := cfg.JWT.Secret
		if secret == "" {
			return fmt.Errorf("jwt.secret is empty; set it in config")
		}
		now := time.Now()
		payload := map[string]interface{}{
			"iat":    now.Unix(),
			"sub":    flagSubject,
			"tenant": flagTenant,
			"role":   flagRole,
		}
		if !flagNoExpiry {
			payload["exp"] = now.Add(time.Duration(flagTTLMin) * time.Minute).Unix()
		}
		tok, err := middleware.SignHS256(payload, secret)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&flagSubject, "sub", "admin", "subject (sub) claim, shown as agent name")
	tokenCmd.Flags().StringVar(&flagTenant, "tenant", models.DefaultTenantID, "tenant claim")
	tokenCmd.Flags().StringVar(&flagRole, "role", "owner", "role claim (owner, admin, agent)")
	tokenCmd.Flags().IntVar(&flagTTLMin, "ttl", 60, "token time-to-live in minutes")
	tokenCmd.Flags().BoolVar(&flagNoExpiry, "no-exp", false, "do not include exp claim")
}
