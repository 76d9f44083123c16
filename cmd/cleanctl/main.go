package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cleanflow/api/internal/config"
	"github.com/cleanflow/api/internal/service"
	"github.com/cleanflow/api/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "cleanctl",
	Short: "Cleanflow operator CLI",
	Long: `cleanctl talks to the task record store directly.
It seeds properties from YAML fixtures, prints derived property status and
the dashboard, and issues development tokens for the API.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CLEANCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("driver", "", "store driver: redis or sqlite (default from server config)")
	rootCmd.PersistentFlags().String("sqlite-path", "", "sqlite database path")
	rootCmd.PersistentFlags().String("redis-addr", "", "redis address")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("driver", rootCmd.PersistentFlags().Lookup("driver"))
	_ = viper.BindPFlag("sqlite-path", rootCmd.PersistentFlags().Lookup("sqlite-path"))
	_ = viper.BindPFlag("redis-addr", rootCmd.PersistentFlags().Lookup("redis-addr"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(assignCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(reportsCmd())
	rootCmd.AddCommand(tokenCmd())
}

// withProperties opens the configured store for the duration of fn
func withProperties(ctx context.Context, fn func(ctx context.Context, svc *service.PropertyService) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	driver := cfg.Store.Driver
	if v := viper.GetString("driver"); v != "" {
		driver = strings.ToLower(v)
	}
	sqlitePath := cfg.Store.SQLitePath
	if v := viper.GetString("sqlite-path"); v != "" {
		sqlitePath = v
	}

	var rdb *redis.Client
	if driver == "redis" || driver == "" {
		addr := cfg.Redis.Addr
		if v := viper.GetString("redis-addr"); v != "" {
			addr = v
		}
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	st, err := store.Open(driver, sqlitePath, rdb)
	if err != nil {
		return err
	}
	defer st.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, service.NewPropertyService(st, nil))
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
