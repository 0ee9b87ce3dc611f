package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/shellboot/internal/bootstrap"
	"github.com/nupi-ai/shellboot/internal/constants"
	"github.com/nupi-ai/shellboot/internal/mode"
	"github.com/nupi-ai/shellboot/internal/plugins"
	"github.com/nupi-ai/shellboot/internal/plugins/discovery"
	"github.com/nupi-ai/shellboot/internal/shell"
)

type selection struct {
	Page    string          `json:"page"`
	Mode    mode.Mode       `json:"mode"`
	Key     string          `json:"key"`
	Entries []plugins.Entry `json:"entries"`
}

type resolution struct {
	selection
	Loaded     []string          `json:"loaded"`
	Failed     map[string]string `json:"failed,omitempty"`
	Missing    []string          `json:"missing,omitempty"`
	Generation uint64            `json:"generation"`
	Markup     map[string]string `json:"markup,omitempty"`
}

func newPluginsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect plugin configuration and modules",
	}

	selectCmd := &cobra.Command{
		Use:   "select",
		Short: "Show the plugin entries a page gets in a mode",
		Args:  cobra.NoArgs,
		RunE:  runPluginsSelect,
	}
	addSelectionFlags(selectCmd)

	resolveCmd := &cobra.Command{
		Use:   "resolve",
		Short: "Load the plugins a page gets in a mode",
		Args:  cobra.NoArgs,
		RunE:  runPluginsResolve,
	}
	addSelectionFlags(resolveCmd)
	resolveCmd.Flags().String("plugin-dir", "", "Plugin module directory (overrides plugin_dir)")
	resolveCmd.Flags().Bool("render", false, "Render loaded plugins with their entry cfg")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List static components and discovered plugin modules",
		Args:  cobra.NoArgs,
		RunE:  runPluginsList,
	}
	listCmd.Flags().String("plugin-dir", "", "Plugin module directory (overrides plugin_dir)")

	cmd.AddCommand(selectCmd, resolveCmd, listCmd)
	return cmd
}

func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().String("local-config", "", "Path to a localConfig.json file")
	cmd.Flags().String("key", bootstrap.DefaultPluginsConfigKey, "Plugins configuration key")
	cmd.Flags().String("page", shell.DefaultPage, "Page name")
	cmd.Flags().String("mode", string(mode.Desktop), "UI mode (desktop, mobile, embedded)")
	cmd.Flags().Bool("mobile-capable", true, "Use {page}_mobile variants in mobile mode")
	cmd.Flags().String("plugins", "", "Extra plugins, as in the plugins query parameter")
	_ = cmd.MarkFlagRequired("local-config")
}

func selectEntries(cmd *cobra.Command) (selection, error) {
	path, _ := cmd.Flags().GetString("local-config")
	key, _ := cmd.Flags().GetString("key")
	page, _ := cmd.Flags().GetString("page")
	rawMode, _ := cmd.Flags().GetString("mode")
	mobileCapable, _ := cmd.Flags().GetBool("mobile-capable")
	extra, _ := cmd.Flags().GetString("plugins")

	m, ok := mode.Parse(rawMode)
	if !ok {
		return selection{}, fmt.Errorf("unknown mode %q", rawMode)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return selection{}, fmt.Errorf("read local config: %w", err)
	}
	var lc bootstrap.LocalConfig
	if err := json.Unmarshal(data, &lc); err != nil {
		return selection{}, fmt.Errorf("decode local config: %w", err)
	}

	cfg := plugins.ApplyOverrides(plugins.ForKey(lc.Plugins, key), lc.PluginsConfigOverride)
	if extra != "" {
		cfg = plugins.AddQueryPlugins(cfg, url.Values{"plugins": {extra}})
	}
	entries := plugins.Selector{MobileCapable: mobileCapable}.Select(page, cfg, m)
	return selection{Page: page, Mode: m, Key: key, Entries: entries}, nil
}

func runPluginsSelect(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	sel, err := selectEntries(cmd)
	if err != nil {
		return out.Error("Failed to select plugins", err)
	}
	if out.jsonMode {
		return out.Print(sel)
	}
	if len(sel.Entries) == 0 {
		return out.Print(fmt.Sprintf("No plugins for page %s (%s).", sel.Page, sel.Mode))
	}
	names := make([]string, len(sel.Entries))
	for i, e := range sel.Entries {
		names[i] = e.Name
	}
	return out.Print(strings.Join(names, "\n"))
}

func pluginCatalog(cmd *cobra.Command) (*plugins.Catalog, *discovery.Service, error) {
	dir, _ := cmd.Flags().GetString("plugin-dir")
	if dir == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, nil, err
		}
		dir = cfg.PluginDir
	}
	catalog := baseCatalog()
	svc := discovery.NewService(dir, catalog, discovery.WithLogger(commandLogger(cmd)))
	if err := svc.Start(cmd.Context()); err != nil {
		return nil, nil, err
	}
	return catalog, svc, nil
}

func runPluginsResolve(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	sel, err := selectEntries(cmd)
	if err != nil {
		return out.Error("Failed to select plugins", err)
	}
	catalog, _, err := pluginCatalog(cmd)
	if err != nil {
		return out.Error("Failed to load plugin modules", err)
	}

	resolver := plugins.NewResolver(plugins.WithLogger(commandLogger(cmd)))
	resolver.Resolve(cmd.Context(), catalog.Descriptors(sel.Entries))

	ctx, cancel := context.WithTimeout(cmd.Context(), constants.PluginLoadTimeout)
	defer cancel()
	st, err := resolver.Wait(ctx)
	if err != nil {
		return out.Error("Plugins did not settle", err)
	}

	res := resolution{
		selection:  sel,
		Loaded:     st.Names(),
		Failed:     st.Failed,
		Missing:    catalog.Missing(sel.Entries),
		Generation: st.Generation,
	}
	if render, _ := cmd.Flags().GetBool("render"); render {
		res.Markup = renderEntries(sel, st)
	}
	if out.jsonMode {
		return out.Print(res)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PLUGIN\tSTATUS")
	for _, e := range sel.Entries {
		status := "missing"
		if _, ok := st.Loaded[e.Name]; ok {
			status = "loaded"
		} else if reason, ok := st.Failed[e.Name]; ok {
			status = "failed: " + reason
		}
		fmt.Fprintf(w, "%s\t%s\n", e.Name, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, name := range sortedKeys(res.Markup) {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s:\n%s\n", name, res.Markup[name])
	}
	return nil
}

func renderEntries(sel selection, st plugins.State) map[string]string {
	markup := make(map[string]string)
	for _, e := range sel.Entries {
		r, ok := st.Loaded[e.Name].(plugins.Renderer)
		if !ok {
			continue
		}
		props := map[string]any{"mode": string(sel.Mode)}
		for k, v := range e.Cfg {
			props[k] = v
		}
		html, err := r.Render(props)
		if err != nil {
			html = "render error: " + err.Error()
		}
		markup[e.Name] = html
	}
	return markup
}

func runPluginsList(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	catalog, svc, err := pluginCatalog(cmd)
	if err != nil {
		return out.Error("Failed to load plugin modules", err)
	}

	if out.jsonMode {
		return out.Print(map[string]any{
			"pluginDir": svc.PluginDir(),
			"static":    staticComponents,
			"modules":   svc.Modules(),
			"warnings":  svc.Warnings(),
		})
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tKIND")
	for _, name := range catalog.Names() {
		d, _ := catalog.Lookup(name)
		kind := d.Kind().String()
		if d.Overrides() {
			kind += " (override)"
		}
		fmt.Fprintf(w, "%s\t%s\n", name, kind)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, warning := range svc.Warnings() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
