package cmd

import (
	"fmt"

	"tenantmigrate/internal/application/common/slogger"
	"tenantmigrate/internal/application/service"
	"tenantmigrate/internal/version"

	"github.com/spf13/cobra"
)

// newBackupCmd creates the backup command group.
func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage source store backup artifacts",
		Long: `Manage the backup artifacts created before migrations.

Artifacts are checksummed, optionally gzip-compressed copies of the source
store file, each with a JSON metadata sidecar. Subcommands create, verify,
list, restore, and clean up artifacts.`,
	}

	cmd.AddCommand(newBackupCreateCmd())
	cmd.AddCommand(newBackupVerifyCmd())
	cmd.AddCommand(newBackupListCmd())
	cmd.AddCommand(newBackupRestoreCmd())
	cmd.AddCommand(newBackupRemoveCmd())
	cmd.AddCommand(newBackupCleanupCmd())
	return cmd
}

func newBackupCreateCmd() *cobra.Command {
	var (
		sourcePath string
		compress   bool
		verify     bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a verified backup of a source store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			cfg := GetConfig()

			manager, err := setupBackupManager(cfg, version.Get().Version)
			if err != nil {
				return fmt.Errorf("initialize backup manager: %w", err)
			}

			path := sourcePath
			if path == "" {
				path = cfg.Source.Path
			}
			if path == "" {
				return fmt.Errorf("source path is required (flag --source or config source.path)")
			}

			artifact, err := manager.CreateBackup(cmd.Context(), path, service.BackupOptions{
				Compress: compress,
				Verify:   verify,
			})
			if err != nil {
				return fmt.Errorf("create backup: %w", err)
			}

			slogger.InfoNoCtx("Backup created", slogger.Fields3(
				"artifact_id", artifact.ID,
				"path", artifact.Path,
				"checksum", artifact.Checksum(),
			))
			fmt.Fprintln(cmd.OutOrStdout(), artifact.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourcePath, "source", "", "Path to the source store file")
	cmd.Flags().BoolVar(&compress, "compress", true, "Gzip-compress the artifact")
	cmd.Flags().BoolVar(&verify, "verify", true, "Re-read and verify the artifact after writing")
	return cmd
}

func newBackupVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <artifact-id>",
		Short: "Verify an artifact's checksum against its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg := GetConfig()

			manager, err := setupBackupManager(cfg, version.Get().Version)
			if err != nil {
				return fmt.Errorf("initialize backup manager: %w", err)
			}

			artifact, err := manager.Get(args[0])
			if err != nil {
				return err
			}
			if err := manager.Verify(cmd.Context(), artifact); err != nil {
				return fmt.Errorf("verify %s: %w", args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
			return nil
		},
	}
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backup artifacts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			cfg := GetConfig()

			manager, err := setupBackupManager(cfg, version.Get().Version)
			if err != nil {
				return fmt.Errorf("initialize backup manager: %w", err)
			}

			artifacts, err := manager.List()
			if err != nil {
				return err
			}
			for _, a := range artifacts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d bytes\t%s\n",
					a.ID, a.Metadata.BackupSizeBytes, a.Metadata.Timestamp.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func newBackupRestoreCmd() *cobra.Command {
	var destPath string

	cmd := &cobra.Command{
		Use:   "restore <artifact-id>",
		Short: "Restore a source store file from an artifact",
		Long: `Restore a source store file from a backup artifact.

The artifact is verified before any bytes are written, decompressed if
needed, written to a temporary file, and moved into place only after the
restored store passes an integrity check.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg := GetConfig()

			manager, err := setupBackupManager(cfg, version.Get().Version)
			if err != nil {
				return fmt.Errorf("initialize backup manager: %w", err)
			}

			artifact, err := manager.Get(args[0])
			if err != nil {
				return err
			}

			dest := destPath
			if dest == "" {
				dest = artifact.Metadata.SourcePath
			}
			if err := manager.Restore(cmd.Context(), artifact, dest); err != nil {
				return fmt.Errorf("restore %s: %w", args[0], err)
			}

			slogger.InfoNoCtx("Backup restored", slogger.Fields2(
				"artifact_id", args[0],
				"dest", dest,
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&destPath, "dest", "", "Destination path (default: the artifact's original source path)")
	return cmd
}

func newBackupRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <artifact-id>",
		Short: "Delete a single artifact regardless of age",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg := GetConfig()

			manager, err := setupBackupManager(cfg, version.Get().Version)
			if err != nil {
				return fmt.Errorf("initialize backup manager: %w", err)
			}

			if err := manager.Remove(args[0]); err != nil {
				return fmt.Errorf("remove %s: %w", args[0], err)
			}
			slogger.InfoNoCtx("Backup removed", slogger.Field("artifact_id", args[0]))
			return nil
		},
	}
}

func newBackupCleanupCmd() *cobra.Command {
	var retentionDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete artifacts older than the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			cfg := GetConfig()

			manager, err := setupBackupManager(cfg, version.Get().Version)
			if err != nil {
				return fmt.Errorf("initialize backup manager: %w", err)
			}

			days := retentionDays
			if days == 0 {
				days = cfg.Backup.RetentionDays
			}

			removed, err := manager.CleanupExpired(cmd.Context(), days)
			if err != nil {
				return err
			}
			for _, id := range removed {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			slogger.InfoNoCtx("Backup cleanup finished", slogger.Fields2(
				"retention_days", days,
				"removed", len(removed),
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "Retention window in days (default from config)")
	return cmd
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newBackupCmd())
}
