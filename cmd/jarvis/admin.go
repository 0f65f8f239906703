package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jarvis-hub/jarvis/internal/application/inject"
	"github.com/jarvis-hub/jarvis/internal/application/providers"
	"github.com/jarvis-hub/jarvis/internal/domain/user"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMINISTRATION
// Задачи запускаются через inject.Invoke: те же провайдеры, что и у
// обработчиков сообщений, та же транзакция на вызов.
// ══════════════════════════════════════════════════════════════════════════════

func createAdminCmd() *cobra.Command {
	var telegramID int64

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create the default admin record if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withGraph(cmd.Context(), func(ctx context.Context, g *providers.Graph) error {
				return inject.Invoke(ctx, "create-admin", createAdmin(cmd.OutOrStdout(), user.TelegramID(telegramID), g.Lookup),
					inject.Bind(providers.ParamUsers, g.UserService))
			})
		},
	}
	cmd.Flags().Int64Var(&telegramID, "telegram-id", 0, "link the admin to this Telegram user")
	return cmd
}

func createAdmin(out io.Writer, telegramID user.TelegramID, lookup *providers.UserLookup) inject.TaskFunc {
	return func(ctx context.Context, deps *inject.Deps) error {
		svc, err := inject.Get[*user.Service](deps, providers.ParamUsers)
		if err != nil {
			return err
		}

		created, err := svc.CreateAdminRecord(ctx)
		if err != nil {
			return fmt.Errorf("create admin record: %w", err)
		}
		if created {
			fmt.Fprintf(out, "admin user %q created\n", user.AdminUsername)
		} else {
			fmt.Fprintf(out, "admin user %q already exists\n", user.AdminUsername)
		}

		if telegramID == 0 {
			return nil
		}
		admin, err := svc.GetByUsername(ctx, user.AdminUsername)
		if err != nil {
			return err
		}
		var previous user.TelegramID
		if admin.TelegramID != nil {
			previous = *admin.TelegramID
		}
		if _, err := svc.Update(ctx, admin, admin.ID, user.Patch{TelegramID: &telegramID}); err != nil {
			return fmt.Errorf("link telegram id: %w", err)
		}
		// Старый Telegram ID не должен проходить auth из кеша.
		if previous != 0 && previous != telegramID {
			if err := lookup.Forget(ctx, previous); err != nil {
				return err
			}
		}
		fmt.Fprintf(out, "admin linked to telegram id %d\n", telegramID)
		return nil
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage bot users",
	}
	cmd.AddCommand(userAddCmd(), userPasswdCmd())
	return cmd
}

func userAddCmd() *cobra.Command {
	var params user.CreateParams
	var telegramID int64

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Register a user so the bot answers them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params.Username = args[0]
			if telegramID != 0 {
				id := user.TelegramID(telegramID)
				params.TelegramID = &id
			}

			return withGraph(cmd.Context(), func(ctx context.Context, g *providers.Graph) error {
				return inject.Invoke(ctx, "user-add", func(ctx context.Context, deps *inject.Deps) error {
					svc, err := inject.Get[*user.Service](deps, providers.ParamUsers)
					if err != nil {
						return err
					}
					// Действие выполняется от имени записи администратора.
					admin, err := svc.GetByUsername(ctx, user.AdminUsername)
					if err != nil {
						return fmt.Errorf("admin record (run create-admin first): %w", err)
					}
					u, err := svc.Create(ctx, admin, params)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "user %q created with id %d\n", u.Username, u.ID)
					return nil
				}, inject.Bind(providers.ParamUsers, g.UserService))
			})
		},
	}
	cmd.Flags().Int64Var(&telegramID, "telegram-id", 0, "Telegram user id")
	cmd.Flags().StringVar(&params.Password, "password", "", "optional password")
	cmd.Flags().IntVar(&params.Level, "level", 1, "access level (99 = admin)")
	return cmd
}

func userPasswdCmd() *cobra.Command {
	var oldPassword, newPassword string

	cmd := &cobra.Command{
		Use:   "passwd <username>",
		Short: "Change a user's password after checking the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if newPassword == "" {
				return errors.New("--new is required")
			}
			return withGraph(cmd.Context(), func(ctx context.Context, g *providers.Graph) error {
				return inject.Invoke(ctx, "user-passwd", changePassword(cmd.OutOrStdout(), args[0], oldPassword, newPassword),
					inject.Bind(providers.ParamUsers, g.UserService))
			})
		},
	}
	cmd.Flags().StringVar(&oldPassword, "old", "", "current password")
	cmd.Flags().StringVar(&newPassword, "new", "", "new password")
	return cmd
}

// changePassword проверяет текущий пароль и сохраняет новый.
func changePassword(out io.Writer, username, oldPassword, newPassword string) inject.TaskFunc {
	return func(ctx context.Context, deps *inject.Deps) error {
		svc, err := inject.Get[*user.Service](deps, providers.ParamUsers)
		if err != nil {
			return err
		}
		u, err := svc.UpdatePassword(ctx, username, oldPassword, newPassword)
		if err != nil {
			return fmt.Errorf("change password of %q: %w", username, err)
		}
		fmt.Fprintf(out, "password of %q changed\n", u.Username)
		return nil
	}
}

// withGraph поднимает инфраструктуру, строит граф провайдеров и вызывает fn.
func withGraph(ctx context.Context, fn func(context.Context, *providers.Graph) error) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	g, err := providers.New(a.infra())
	if err != nil {
		return fmt.Errorf("failed to build providers: %w", err)
	}
	return fn(ctx, g)
}
