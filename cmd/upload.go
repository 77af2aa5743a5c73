package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/corpusd/corpusd/internal/app"
	"github.com/corpusd/corpusd/internal/config"
	"github.com/corpusd/corpusd/internal/store"
)

// ownerFlags holds the mutually exclusive owner selection flags.
type ownerFlags struct {
	userID string
	orgID  string
}

func (f *ownerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.userID, "user", "", "owning user ID")
	cmd.Flags().StringVar(&f.orgID, "org", "", "owning organization ID")
	cmd.MarkFlagsMutuallyExclusive("user", "org")
}

func (f *ownerFlags) owner() (store.Owner, error) {
	switch {
	case f.userID != "":
		id, err := uuid.Parse(f.userID)
		if err != nil {
			return store.Owner{}, fmt.Errorf("invalid user ID %q: %w", f.userID, err)
		}
		return store.UserOwner(id), nil
	case f.orgID != "":
		id, err := uuid.Parse(f.orgID)
		if err != nil {
			return store.Owner{}, fmt.Errorf("invalid organization ID %q: %w", f.orgID, err)
		}
		return store.OrganizationOwner(id), nil
	default:
		return store.Owner{}, errors.New("either --user or --org is required")
	}
}

// NewUploadCmd creates the upload command (factory pattern)
func NewUploadCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var owner ownerFlags
	var name string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document for ingestion",
		Long: `Upload a document and schedule its ingestion.

The command returns as soon as the document is registered and the job is
queued. Ingestion happens asynchronously; check progress with
"corpusd status <document-id>".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := owner.owner()
			if err != nil {
				return err
			}

			displayName := name
			if displayName == "" {
				displayName = filepath.Base(args[0])
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer func() {
				_ = f.Close()
			}()

			a, err := app.Setup(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initializing application: %w", err)
			}
			defer func() {
				_ = a.Close()
			}()

			doc, err := a.Service.Upload(cmd.Context(), o, displayName, f)
			if err != nil {
				if errors.Is(err, store.ErrAlreadyExists) {
					return fmt.Errorf("a document named %q already exists for this owner", displayName)
				}
				return err
			}

			fmt.Printf("Document ID: %s\n", doc.ID)
			fmt.Printf("Status:      %s\n", doc.Status)
			return nil
		},
	}

	owner.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the file name)")
	return cmd
}
