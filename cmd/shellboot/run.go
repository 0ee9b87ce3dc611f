package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/shellboot/internal/bootstrap"
	"github.com/nupi-ai/shellboot/internal/client"
	"github.com/nupi-ai/shellboot/internal/config"
	"github.com/nupi-ai/shellboot/internal/constants"
	"github.com/nupi-ai/shellboot/internal/epics"
	"github.com/nupi-ai/shellboot/internal/eventbus"
	"github.com/nupi-ai/shellboot/internal/mode"
	"github.com/nupi-ai/shellboot/internal/plugins/discovery"
	"github.com/nupi-ai/shellboot/internal/resource"
	"github.com/nupi-ai/shellboot/internal/runtime"
	"github.com/nupi-ai/shellboot/internal/server"
	"github.com/nupi-ai/shellboot/internal/shell"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Bootstrap the shell against a backend and serve it",
		Long: `Fetches endpoints, local configuration and account info from the backend,
mounts the shell and serves pages, state and the plugin stream over HTTP.
The server keeps running when the bootstrap fails and reports the failure.`,
		Args: cobra.NoArgs,
		RunE: runShell,
	}
	cmd.Flags().String("url", "", "Backend base URL (overrides base_url)")
	cmd.Flags().String("addr", "", "Listen address (overrides listen_addr)")
	cmd.Flags().String("page", "", "Page shown after mount (overrides page)")
	cmd.Flags().String("nav", "", "Navigation URL whose query drives the bootstrap (default: base URL)")
	cmd.Flags().Bool("mobile", false, "Report a mobile viewport")
	return cmd
}

func runShell(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := commandLogger(cmd)
	bus := eventbus.New(eventbus.WithLogger(logger))
	defer bus.Shutdown()

	repo, err := resource.Open(resource.Options{Path: cfg.ResourceDB})
	if err != nil {
		return err
	}
	defer repo.Close()

	catalog := baseCatalog()
	modules := discovery.NewService(cfg.PluginDir, catalog, discovery.WithLogger(logger))

	backend, err := client.New(cfg.BaseURL,
		client.WithToken(cfg.AccessToken),
		client.WithTimeout(cfg.HTTPTimeout),
		client.WithLocalConfigURL(cfg.LocalConfigURL),
		client.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	domainEpics := resource.Epics(repo, logger)
	sh := shell.New(shell.WithLogger(logger), shell.WithBus(bus), shell.WithDefaultPage(cfg.Page))
	orch := bootstrap.New(backend, sh,
		bootstrap.WithLogger(logger),
		bootstrap.WithBus(bus),
		bootstrap.WithCatalog(catalog),
		bootstrap.WithRegistry(epics.NewRegistry(domainEpics)),
		bootstrap.WithDomainEpics(domainEpics),
	)
	srv := server.New(sh, orch,
		server.WithLogger(logger),
		server.WithAddr(cfg.ListenAddr),
		server.WithBus(bus),
		server.WithAllowedOrigins(cfg.AllowedOrigins...),
	)

	host := runtime.NewServiceHost()
	if err := host.Register("plugins", modules); err != nil {
		return err
	}
	if err := host.Register("shell", runtime.ServiceFunc{ShutdownFunc: sh.Shutdown}); err != nil {
		return err
	}
	if err := host.Register("server", srv, runtime.WithShutdownTimeout(constants.ServerShutdownTimeout)); err != nil {
		return err
	}
	if err := host.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := host.Stop(context.Background()); err != nil {
			logger.Printf("[Bootstrap] shutdown: %v", err)
		}
	}()

	navURL, _ := cmd.Flags().GetString("nav")
	if navURL == "" {
		navURL = cfg.BaseURL
	}
	mobile, _ := cmd.Flags().GetBool("mobile")
	nav, err := bootstrap.ParseNavigation(navURL, mode.Viewport{Mobile: mobile})
	if err != nil {
		return err
	}

	bootErr := orch.Run(ctx, nav)
	if bootErr != nil {
		var stageErr *bootstrap.StageError
		if errors.As(bootErr, &stageErr) {
			fmt.Fprintf(cmd.ErrOrStderr(), "bootstrap failed at %s; serving failure state on %s\n", stageErr.Stage, srv.Addr())
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "shell mounted; serving on http://%s\n", srv.Addr())
	}

	select {
	case <-ctx.Done():
		return bootErr
	case err := <-host.Errors():
		return err
	}
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("url"); v != "" {
		cfg.BaseURL = v
	}
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		cfg.ListenAddr = v
	}
	if v, _ := cmd.Flags().GetString("page"); v != "" {
		cfg.Page = v
	}
}
