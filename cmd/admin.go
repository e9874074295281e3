package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"remnabot/internal/entities"
	"remnabot/internal/infrastructure"
	"remnabot/internal/repository"
	"remnabot/internal/usecases"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage dashboard accounts",
	}
	cmd.AddCommand(newAdminCreateCmd())
	return cmd
}

func newAdminCreateCmd() *cobra.Command {
	var (
		username string
		password string
		botID    int64
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a superadmin, or a bot owner with --bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			pg, err := infrastructure.NewPostgresClient(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer pg.Close()

			store := repository.NewStore(pg.DB)
			auth := usecases.NewAuthUsecase(store, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

			var admin *entities.Admin
			if botID != 0 {
				admin, err = auth.CreateBotOwner(cmd.Context(), username, password, botID)
			} else {
				s := store.System()
				defer s.Close()
				admin, err = auth.CreateAdmin(cmd.Context(), s, username, password, entities.RoleSuperAdmin, nil)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %q (id %d)\n", admin.Role, admin.Username, admin.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "login name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password, at least 8 characters")
	cmd.Flags().Int64Var(&botID, "bot", 0, "bot id the owner manages")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
