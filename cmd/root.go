/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"duskdb/internal/config"
	"duskdb/internal/logger"
	"duskdb/internal/server"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// rootCmd represents base command when called without subcommands
var rootCmd = &cobra.Command{
	Use:   "duskdb",
	Short: "A Redis-compatible in-memory database server",
	Long: `A Redis-compatible in-memory database server built in Go.
Supports PING, ECHO, GET/SET with PX expiry, KEYS, INCR, CONFIG GET,
INFO, MULTI/EXEC/DISCARD transactions, and leader/replica replication.`,
	Run: func(cmd *cobra.Command, args []string) {
		logLevel := logger.LogLevel(getStringFlag(cmd, "log-level", "info"))
		logger.Init(logLevel)

		replicaOf := getStringFlag(cmd, "replicaof", "")

		replID := ""
		if replicaOf == "" {
			// A replica adopts its master's replication ID during the
			// handshake (spec.md §4.5); a master mints its own.
			// The replid is 40 hex characters; two UUIDs supply 64.
			hexID := strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
			replID = hexID[:40]
		}

		cfg := &config.Config{
			Dir:        getStringFlag(cmd, "dir", "./data"),
			DBFilename: getStringFlag(cmd, "dbfilename", "dump.rdb"),
			Port:       getIntFlag(cmd, "port", 6379),
			ReplicaOf:  replicaOf,
			ReplID:     replID,
		}

		srv := server.New(cfg)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Run(ctx) }()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			if err != nil {
				logger.Errorf("server exited: %v", err)
				os.Exit(1)
			}
		case <-quit:
			logger.Info("shutting down")
			cancel()
			<-errCh
		}
	},
}

// Execute adds child commands to root and sets flags appropriately.
// Called by main.main(). Only needs to happen once to rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error, fatal)")
	rootCmd.Flags().String("dir", "./data", "Directory holding the RDB snapshot")
	rootCmd.Flags().String("dbfilename", "dump.rdb", "RDB snapshot filename")
	rootCmd.Flags().Int("port", 6379, "Server port")
	rootCmd.Flags().String("replicaof", "", "Replicate from master (format: \"host port\")")
}

func getStringFlag(cmd *cobra.Command, name, defaultValue string) string {
	if value, err := cmd.Flags().GetString(name); err == nil && value != "" {
		return value
	}
	return defaultValue
}

func getIntFlag(cmd *cobra.Command, name string, defaultValue int) int {
	if value, err := cmd.Flags().GetInt(name); err == nil {
		return value
	}
	return defaultValue
}
