package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"dragonfly/config"
	mslogger "dragonfly/logger"
	"dragonfly/pkg/appinfo"
)

var (
	appName    = appinfo.Name
	appVersion = appinfo.Version
)

// Debounce delay for config reload.
const debounceDelay = 500 * time.Millisecond

var (
	configFile string
	debug      bool
	verbose    bool
	jsonLog    bool
	envMaskRaw string
	healthPort int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   appinfo.Name,
		Short: appinfo.Title,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "dragonfly.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "json-log", false, "emit logs as single-line JSON")
	rootCmd.PersistentFlags().StringVar(&envMaskRaw, "env-mask", "", "regex of env var names visible to ${...} substitution")
	rootCmd.PersistentFlags().IntVar(&healthPort, "health-port", 0, "port for a plain-text /healthz-style responder (0 disables)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Run: func(cmd *cobra.Command, args []string) {
			mslogger.JSONMode = jsonLog
			mslogger.LoggerConfig.ShowTimestamp = !jsonLog

			mask, err := compileEnvMask(envMaskRaw)
			if err != nil {
				mslogger.LogError(fmt.Sprintf("invalid --env-mask: %v", err))
				os.Exit(1)
			}

			rt, err := NewRuntime(configFile, mask, healthPort)
			if err != nil {
				mslogger.LogError(fmt.Sprintf("startup failed: %v", err))
				os.Exit(1)
			}

			rt.Start()
			watchAndServe(rt, configFile)
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the config file, then exit",
		Run: func(cmd *cobra.Command, args []string) {
			if _, err := config.Load(configFile); err != nil {
				mslogger.LogError(err.Error())
				os.Exit(1)
			}
			mslogger.LogSuccess(fmt.Sprintf("%s is valid", configFile))
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s\n", appinfo.Title, appinfo.Version)
		},
	}
}

func compileEnvMask(pattern string) (*regexp.Regexp, error) {
	if pattern == "" || pattern == "*" {
		pattern = ".+"
	}
	return regexp.Compile(pattern)
}

// watchAndServe blocks, reloading the gateway on debounced config-file
// writes and shutting down cleanly on SIGINT/SIGTERM/SIGQUIT/SIGHUP.
func watchAndServe(rt *Runtime, configFile string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		mslogger.LogError(fmt.Sprintf("failed to start config watcher: %v", err))
		os.Exit(1)
	}
	defer watcher.Close()

	if err := watcher.Add(configFile); err != nil {
		mslogger.LogError(fmt.Sprintf("failed to watch config file: %v", err))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	var reloadTimer *time.Timer
	var mu sync.Mutex

	for {
		select {
		case event := <-watcher.Events:
			if event.Op&fsnotify.Write == fsnotify.Write {
				mu.Lock()
				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadTimer = time.AfterFunc(debounceDelay, rt.Reload)
				mu.Unlock()
			}

		case err := <-watcher.Errors:
			mslogger.LogError(fmt.Sprintf("config watcher error: %v", err))

		case sig := <-sigChan:
			mslogger.LogWarn(fmt.Sprintf("signal received (%s), shutting down gracefully...", sig))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			rt.Shutdown(ctx)
			cancel()
			mslogger.LogInfo("dragonfly stopped")
			return
		}
	}
}
