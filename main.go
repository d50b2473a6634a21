package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wezterm-compat/tmuxcc/internal/tmuxccserver"
	"github.com/wezterm-compat/tmuxcc/internal/tmuxccserver/debughttp"
	"github.com/wezterm-compat/tmuxcc/internal/tmuxccserver/localhost"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tmuxcc [flags]\n\n")
		fmt.Fprintf(os.Stderr, "A tmux control-mode compatible server backed by real PTYs.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tmuxcc --workspace default\n")
		fmt.Fprintf(os.Stderr, "  tmuxcc --workspace default --debug-addr 127.0.0.1:9222\n")
	}

	workspace := flag.String("workspace", "default", "workspace (tmux session) name to serve")
	socketDir := flag.String("socket-dir", defaultSocketDir(), "directory for the control-mode Unix socket (empty forces TCP)")
	cacheDir := flag.String("cache-dir", defaultCacheDir(), "directory for the identity-map cache file")
	pauseAgeMs := flag.Int64("pause-age-ms", 0, "pane output age (ms) after which a pane auto-pauses (0 disables)")
	shell := flag.String("shell", "", "shell command spawned for new panes (defaults to $SHELL)")
	debugAddr := flag.String("debug-addr", "", "optional address for the debug introspection WebSocket (empty disables it)")
	debugToken := flag.String("debug-token", "", "optional bearer token required by the debug endpoint")
	flag.Parse()

	host := localhost.New(*shell)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := host.EnsureWorkspace(ctx, *workspace); err != nil {
		log.Fatalf("tmuxcc: create workspace %q: %v", *workspace, err)
	}

	srv := tmuxccserver.New(host, *workspace, *cacheDir, *pauseAgeMs)

	ln, addr, err := tmuxccserver.Listen(*socketDir, *workspace)
	if err != nil {
		log.Fatalf("tmuxcc: listen: %v", err)
	}
	if err := os.Setenv("WEZTERM_TMUX_CC", addr); err != nil {
		log.Printf("tmuxcc: warning: could not set WEZTERM_TMUX_CC: %v", err)
	}
	log.Printf("tmuxcc: listening on %s (workspace %q)", addr, *workspace)

	go func() {
		if err := srv.Run(ctx, ln); err != nil {
			log.Printf("tmuxcc: server exited: %v", err)
			cancel()
		}
	}()

	if *debugAddr != "" {
		dbg := debughttp.New(host, *debugToken)
		go func() {
			if err := dbg.ListenAndServe(ctx, *debugAddr); err != nil {
				log.Printf("tmuxcc: debug endpoint exited: %v", err)
			}
		}()
		log.Printf("tmuxcc: debug endpoint on %s", *debugAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	cancel()
}

func defaultSocketDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/tmuxcc"
	}
	return os.TempDir() + "/tmuxcc"
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/tmuxcc"
	}
	return os.TempDir() + "/tmuxcc"
}
