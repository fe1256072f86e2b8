package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"phFolio/internal/config"
)

type dbFlags struct {
	host     string
	port     int
	name     string
	user     string
	password string
	sslMode  string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "phFolio 运维命令",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newCreateUserCmd(), newMigrateCmd(), newCacheCmd())
	return root
}

func (f *dbFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.host, "db-host", "", "数据库 Host（可选，默认读 DATABASE_HOST）")
	cmd.Flags().IntVar(&f.port, "db-port", 0, "数据库 Port（可选，默认读 DATABASE_PORT）")
	cmd.Flags().StringVar(&f.name, "db-name", "", "数据库名（可选，默认读 POSTGRES_DB）")
	cmd.Flags().StringVar(&f.user, "db-user", "", "数据库用户（可选，默认读 POSTGRES_USER）")
	cmd.Flags().StringVar(&f.password, "db-password", "", "数据库密码（可选，默认读 POSTGRES_PASSWORD）")
	cmd.Flags().StringVar(&f.sslMode, "db-sslmode", "", "数据库 SSLMODE（可选，默认读 DATABASE_SSLMODE）")
}

// config 合并命令行参数与环境变量；只需要数据库时不走 config.Load 的完整校验。
func (f *dbFlags) config() (config.DatabaseConfig, error) {
	host := firstNonEmpty(f.host, os.Getenv("DATABASE_HOST"), "localhost")
	name := firstNonEmpty(f.name, os.Getenv("POSTGRES_DB"))
	user := firstNonEmpty(f.user, os.Getenv("POSTGRES_USER"))
	password := firstNonEmpty(f.password, os.Getenv("POSTGRES_PASSWORD"))
	sslMode := firstNonEmpty(f.sslMode, os.Getenv("DATABASE_SSLMODE"), "disable")

	port := f.port
	if port <= 0 {
		if env := strings.TrimSpace(os.Getenv("DATABASE_PORT")); env != "" {
			p, err := strconv.Atoi(env)
			if err != nil {
				return config.DatabaseConfig{}, fmt.Errorf("parse DATABASE_PORT: %w", err)
			}
			port = p
		}
	}
	if port <= 0 {
		port = 5432
	}

	if name == "" {
		return config.DatabaseConfig{}, errors.New("database name is required (POSTGRES_DB)")
	}
	if user == "" {
		return config.DatabaseConfig{}, errors.New("database user is required (POSTGRES_USER)")
	}
	if password == "" {
		return config.DatabaseConfig{}, errors.New("database password is required (POSTGRES_PASSWORD)")
	}

	return config.DatabaseConfig{
		Host:     host,
		Port:     port,
		Name:     name,
		User:     user,
		Password: password,
		SSLMode:  sslMode,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
