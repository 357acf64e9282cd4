package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"schooldesk/internal/auth"
	"schooldesk/internal/config"
	"schooldesk/internal/school"
	"schooldesk/internal/store"
)

func main() {
	if err := newRootCmd(openFromConfig).Execute(); err != nil {
		os.Exit(1)
	}
}

type opener func(ctx context.Context) (*store.DB, error)

func openFromConfig(ctx context.Context) (*store.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return store.NewDB(ctx, cfg.DBDriver, cfg.DatabaseURL)
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:          "schooldesk-admin",
		Short:        "Operator tasks for the schooldesk database",
		SilenceUsage: true,
	}
	root.AddCommand(migrateCmd(open), addUserCmd(open), addClassCmd(open))
	return root
}

func migrateCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func addUserCmd(open opener) *cobra.Command {
	var email, password, name, role, classID string
	cmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create a profile with login credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := school.Role(role)
			if !r.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			db, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			p := school.Profile{Role: r, FullName: name}
			if classID != "" {
				p.ClassID = &classID
			}
			if err := school.NewRepository(db.Client).CreateUser(cmd.Context(), &p, email, hash); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s\n", p.Role, p.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&password, "password", "", "initial password, at least 8 characters")
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&role, "role", string(school.RoleStudent), "student, teacher or admin")
	cmd.Flags().StringVar(&classID, "class", "", "class id for students")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func addClassCmd(open opener) *cobra.Command {
	var c school.Class
	cmd := &cobra.Command{
		Use:   "addclass",
		Short: "Create a class",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := school.NewRepository(db.Client).CreateClass(cmd.Context(), &c); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&c.Name, "name", "", "display name")
	cmd.Flags().IntVar(&c.Grade, "grade", 0, "grade number")
	cmd.Flags().StringVar(&c.Section, "section", "", "section letter")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
