package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"phFolio/internal/auth"
	"phFolio/internal/database"
)

func newCreateUserCmd() *cobra.Command {
	var (
		db       dbFlags
		username string
	)
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "创建账号，首次登录需强制改密",
		RunE: func(cmd *cobra.Command, _ []string) error {
			u := strings.TrimSpace(username)
			if u == "" {
				return errors.New("missing required flag: --username")
			}
			dbCfg, err := db.config()
			if err != nil {
				return fmt.Errorf("load database config: %w", err)
			}
			conn, err := database.InitDatabase(dbCfg)
			if err != nil {
				return fmt.Errorf("init database: %w", err)
			}
			if err := database.Migrate(conn); err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}

			var existing database.User
			switch err := conn.Where("username = ?", u).First(&existing).Error; {
			case err == nil:
				return fmt.Errorf("user %q already exists", u)
			case errors.Is(err, gorm.ErrRecordNotFound):
			default:
				return fmt.Errorf("query user: %w", err)
			}

			password, err := auth.GenerateRandomPassword(24)
			if err != nil {
				return fmt.Errorf("generate password: %w", err)
			}
			hashed, err := auth.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			user := database.User{
				Username:           u,
				PasswordHash:       hashed,
				MustChangePassword: true,
			}
			if err := conn.Create(&user).Error; err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "已创建账号（首次登录需强制改密）：\n")
			fmt.Fprintf(out, "用户名: %s\n", u)
			fmt.Fprintf(out, "初始密码: %s\n", password)
			fmt.Fprintf(out, "提示：请立即登录并修改密码（该密码仅显示一次）。\n")
			return nil
		},
	}
	db.register(cmd)
	cmd.Flags().StringVar(&username, "username", "", "登录用户名（必填）")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var db dbFlags
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "同步数据库表结构",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbCfg, err := db.config()
			if err != nil {
				return fmt.Errorf("load database config: %w", err)
			}
			conn, err := database.InitDatabase(dbCfg)
			if err != nil {
				return fmt.Errorf("init database: %w", err)
			}
			if err := database.Migrate(conn); err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration complete")
			return nil
		},
	}
	db.register(cmd)
	return cmd
}
