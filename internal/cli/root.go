package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/lazypower/crisp/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "crisp",
	Short: "Endorsement labels whose weight fades with age",
	Long:  "Crisp records per-user likes on content labels and scores each label by how recently it was endorsed.",
}

var (
	serverURL string
	userID    string
	token     string
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "url", "", "Server URL (default $CRISP_URL or http://127.0.0.1:38888)")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "Act as this user (signs a token with the configured secret)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token (default $CRISP_TOKEN)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(likeCmd)
	rootCmd.AddCommand(unlikeCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(tokenCmd)
}

// newLogger builds the process logger from the log section of the config.
func newLogger(cfg config.LogConfig) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("log format %q: want text or json", cfg.Format)
	}
	return logger, nil
}
