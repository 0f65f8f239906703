// Package main - точка входа Jarvis, Telegram-бота, который хранит ссылки
// пользователя, ищет их по смыслу и отвечает на свободный текст через LLM.
//
// Команды:
//   - serve         бот и HTTP-пробы
//   - migrate       управление схемой БД
//   - create-admin  запись администратора по умолчанию
//   - user add      регистрация пользователя бота
//   - token set     сохранение токена бота в системном keyring
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version задаётся при сборке: -ldflags "-X main.Version=v1.0.0".
var Version = "dev"

var envFile string

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "jarvis",
		Short:         "Jarvis - Telegram link keeper with semantic search",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if envFile != "" {
				_ = os.Setenv("JARVIS_ENV_FILE", envFile)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to .env file (default: .env or $JARVIS_ENV_FILE)")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(createAdminCmd())
	root.AddCommand(userCmd())
	root.AddCommand(tokenCmd())
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "jarvis %s\n", Version)
		},
	}
}

func main() {
	// SIGINT/SIGTERM отменяют контекст, и serve завершается штатно.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}
