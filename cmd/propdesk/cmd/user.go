package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"prop-challenge-go/internal/models"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage desk users and their API tokens",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a user and print a bearer token for it",
	RunE:  runUserAdd,
}

var userTokenCmd = &cobra.Command{
	Use:   "token USER_ID",
	Short: "Print a bearer token for an existing user",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserToken,
}

var (
	userName  string
	userEmail string
	userAdmin bool
)

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd, userTokenCmd)

	userAddCmd.Flags().StringVarP(&userName, "name", "n", "", "display name (required)")
	userAddCmd.Flags().StringVarP(&userEmail, "email", "e", "", "unique email (required)")
	userAddCmd.Flags().BoolVar(&userAdmin, "admin", false, "grant the admin role")
	_ = userAddCmd.MarkFlagRequired("name")
	_ = userAddCmd.MarkFlagRequired("email")
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}
	store, db, err := a.openStore()
	if err != nil {
		return err
	}
	defer a.close(db)

	user := models.User{Name: strings.TrimSpace(userName), Email: strings.TrimSpace(userEmail), Role: models.RoleUser}
	if userAdmin {
		user.Role = models.RoleAdmin
	}
	if err := store.CreateUser(cmd.Context(), &user); err != nil {
		return err
	}

	token, err := a.verifier().Sign(user.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "user %d (%s)\ntoken: %s\n", user.ID, user.Role, token)
	return nil
}

func runUserToken(cmd *cobra.Command, args []string) error {
	var id uint
	if _, err := fmt.Sscan(args[0], &id); err != nil || id == 0 {
		return fmt.Errorf("invalid user id %q", args[0])
	}

	a, err := bootstrap()
	if err != nil {
		return err
	}
	store, db, err := a.openStore()
	if err != nil {
		return err
	}
	defer a.close(db)

	user, err := store.GetUser(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("user %d: %w", id, err)
	}
	token, err := a.verifier().Sign(user.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
