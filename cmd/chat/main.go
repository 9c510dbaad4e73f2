// Command chat is the terminal chat client.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/feedchat/internal/app"
	"github.com/PaulBabatuyi/feedchat/internal/config"
	"github.com/PaulBabatuyi/feedchat/internal/googleauth"
	"github.com/PaulBabatuyi/feedchat/internal/logging"
	"github.com/PaulBabatuyi/feedchat/internal/tui"
)

var (
	configPath string
	addr       string
	logFile    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Real-time chat in the terminal",
	Long: `chat signs you in with Google and opens the shared conversation.

Enter sends, Alt+Enter starts a new line, PgUp scrolls back through history
and Ctrl+O signs out.`,
	SilenceUsage: true,
	RunE:         runChat,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the cached Google session",
	RunE:  runLogout,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultClientPath()+")")
	rootCmd.Flags().StringVar(&addr, "addr", "", "gateway address (overrides config)")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "log file (overrides config)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(logoutCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadClient(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}

	logger, err := logging.New(logging.Options{Verbose: verbose, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting chat", zap.String("addr", cfg.Addr))
	p := tea.NewProgram(tui.New(a), tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	path := filepath.Join(config.Dir(), "token.json")
	if cfg, err := config.LoadClient(configPath); err == nil {
		path = cfg.TokenCache
	}
	if err := googleauth.NewTokenCache(path).Clear(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
	return nil
}
