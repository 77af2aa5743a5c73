package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/store"
)

// NewAdminCmd creates the admin command (factory pattern)
func NewAdminCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage users and organizations",
	}

	adminCmd.AddCommand(newAdminCreateOrgCmd(cfg, logger))
	adminCmd.AddCommand(newAdminCreateUserCmd(cfg, logger))

	return adminCmd
}

func newAdminCreateOrgCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "create-org <name>",
		Short: "Create an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeStore, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			org, err := s.CreateOrganization(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, store.ErrAlreadyExists) {
					return fmt.Errorf("an organization named %q already exists", args[0])
				}
				return err
			}
			fmt.Printf("Organization ID: %s\n", org.ID)
			return nil
		},
	}
}

func newAdminCreateUserCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var email, orgID string

	cmd := &cobra.Command{
		Use:   "create-user <username>",
		Short: "Create a user, optionally in an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var org *uuid.UUID
			if orgID != "" {
				id, err := uuid.Parse(orgID)
				if err != nil {
					return fmt.Errorf("invalid organization ID %q: %w", orgID, err)
				}
				org = &id
			}

			s, closeStore, err := openStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			user, err := s.CreateUser(cmd.Context(), args[0], email, org)
			if err != nil {
				if errors.Is(err, store.ErrAlreadyExists) {
					return fmt.Errorf("a user named %q already exists", args[0])
				}
				return err
			}
			fmt.Printf("User ID: %s\n", user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().StringVar(&orgID, "org", "", "organization ID to join")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
