package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/shellboot/internal/version"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show client and server versions",
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}
	cmd.Flags().String("server", "", "Address of a running shellboot server to compare with")
	return cmd
}

type healthInfo struct {
	Version   string `json:"version"`
	Bootstrap string `json:"bootstrap"`
}

func fetchHealth(ctx context.Context, addr string) (healthInfo, error) {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/healthz", nil)
	if err != nil {
		return healthInfo{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return healthInfo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return healthInfo{}, fmt.Errorf("healthz returned %s", resp.Status)
	}
	var info healthInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return healthInfo{}, fmt.Errorf("decode healthz: %w", err)
	}
	return info, nil
}

func runVersion(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	clientVersion := version.String()
	addr, _ := cmd.Flags().GetString("server")

	var (
		info      healthInfo
		serverErr error
	)
	if addr != "" {
		ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
		defer cancel()
		info, serverErr = fetchHealth(ctx, addr)
	}

	if out.jsonMode {
		data := map[string]any{"client": clientVersion}
		if addr != "" {
			if serverErr != nil {
				data["server"] = nil
				data["server_error"] = serverErr.Error()
			} else {
				data["server"] = info.Version
				data["bootstrap"] = info.Bootstrap
				if w := version.CheckServerMismatch(info.Version); w != "" {
					data["mismatch"] = true
					data["warning"] = w
				}
			}
		}
		return out.Print(data)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Client: %s\n", version.FormatVersion(clientVersion))
	if addr == "" {
		return nil
	}
	if serverErr != nil {
		fmt.Fprintf(w, "Server: unavailable (%v)\n", serverErr)
		return nil
	}
	fmt.Fprintf(w, "Server: %s (%s)\n", version.FormatVersion(info.Version), info.Bootstrap)
	if warning := version.CheckServerMismatch(info.Version); warning != "" {
		fmt.Fprintln(w, warning)
	}
	return nil
}
