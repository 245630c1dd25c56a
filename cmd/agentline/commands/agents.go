package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/karthala/agentline/manifest"
)

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List resolvable agents",
		Long: `List every agent manifest discovered under the agents directory.

Examples:
  agentline agents
  agentline agents --json
  agentline agents --agents-dir ~/agents`,
		Args: cobra.NoArgs,
		RunE: runAgents,
	}

	cmd.Flags().Bool("json", false, "print the list as JSON")
	return cmd
}

// agentInfo is the JSON listing shape for one agent.
type agentInfo struct {
	Name        string   `json:"name"`
	Version     string   `json:"version,omitempty"`
	Description string   `json:"description,omitempty"`
	Command     []string `json:"command"`
}

func runAgents(cmd *cobra.Command, _ []string) error {
	st, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	reg, err := manifest.LoadRegistry(st.AgentsDir, newLogger(st))
	if err != nil {
		return err
	}

	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		infos := make([]agentInfo, 0, reg.Len())
		for _, name := range reg.Names() {
			m, _ := reg.Get(name)
			infos = append(infos, agentInfo{
				Name:        m.Name,
				Version:     m.Version,
				Description: m.Description,
				Command:     m.Command,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	if reg.Len() == 0 {
		fmt.Printf("no agents found under %s\n", st.AgentsDir)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tDESCRIPTION\tCOMMAND")
	for _, name := range reg.Names() {
		m, _ := reg.Get(name)
		version := m.Version
		if version == "" {
			version = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			m.Name, version, m.Description, strings.Join(m.Command, " "))
	}
	return w.Flush()
}
