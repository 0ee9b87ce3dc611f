package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/shellboot/internal/actions"
	"github.com/nupi-ai/shellboot/internal/resource"
)

func newResourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "Manage stored resource configurations",
		Long: `Resource configurations answer the resource requests dispatched when the
shell mounts a page with a resource id (for example a dashboard).`,
	}
	cmd.PersistentFlags().String("db", "", "Resource database path (overrides resource_db)")

	putCmd := &cobra.Command{
		Use:   "put <type> <id> <file|->",
		Short: "Store a resource configuration from a JSON file or stdin",
		Args:  cobra.ExactArgs(3),
		RunE:  runResourcesPut,
	}
	getCmd := &cobra.Command{
		Use:   "get <type> <id>",
		Short: "Print a stored resource configuration",
		Args:  cobra.ExactArgs(2),
		RunE:  runResourcesGet,
	}
	listCmd := &cobra.Command{
		Use:   "list <type>",
		Short: "List stored resources of a type",
		Args:  cobra.ExactArgs(1),
		RunE:  runResourcesList,
	}
	deleteCmd := &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Remove a stored resource configuration",
		Args:  cobra.ExactArgs(2),
		RunE:  runResourcesDelete,
	}

	cmd.AddCommand(putCmd, getCmd, listCmd, deleteCmd)
	return cmd
}

func openRepository(cmd *cobra.Command, readOnly bool) (*resource.Repository, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return nil, err
		}
		path = cfg.ResourceDB
	}
	return resource.Open(resource.Options{Path: path, ReadOnly: readOnly})
}

func runResourcesPut(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	rt, id, src := actions.ResourceType(args[0]), args[1], args[2]

	var (
		raw []byte
		err error
	)
	if src == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(src)
	}
	if err != nil {
		return out.Error("Failed to read resource", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return out.Error("Resource must be a JSON object", err)
	}

	repo, err := openRepository(cmd, false)
	if err != nil {
		return out.Error("Failed to open resource database", err)
	}
	defer repo.Close()

	if err := repo.Put(cmd.Context(), rt, id, data); err != nil {
		return out.Error("Failed to store resource", err)
	}
	return out.Success(fmt.Sprintf("Stored %s %s", rt, id), map[string]any{
		"resourceType": rt,
		"pk":           id,
	})
}

func runResourcesGet(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	repo, err := openRepository(cmd, true)
	if err != nil {
		return out.Error("Failed to open resource database", err)
	}
	defer repo.Close()

	rec, err := repo.Get(cmd.Context(), actions.ResourceType(args[0]), args[1])
	if err != nil {
		return out.Error("Failed to read resource", err)
	}
	if out.jsonMode {
		return out.Print(rec)
	}
	return out.Print(rec.Data)
}

func runResourcesList(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	repo, err := openRepository(cmd, true)
	if err != nil {
		return out.Error("Failed to open resource database", err)
	}
	defer repo.Close()

	records, err := repo.List(cmd.Context(), actions.ResourceType(args[0]))
	if err != nil {
		return out.Error("Failed to list resources", err)
	}
	if out.jsonMode {
		return out.Print(records)
	}
	if len(records) == 0 {
		return out.Print(fmt.Sprintf("No %s resources stored.", args[0]))
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUPDATED")
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\n", rec.ID, rec.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runResourcesDelete(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	repo, err := openRepository(cmd, false)
	if err != nil {
		return out.Error("Failed to open resource database", err)
	}
	defer repo.Close()

	rt, id := actions.ResourceType(args[0]), args[1]
	if err := repo.Delete(cmd.Context(), rt, id); err != nil {
		return out.Error("Failed to delete resource", err)
	}
	return out.Success(fmt.Sprintf("Deleted %s %s", rt, id), nil)
}
