package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/initializ/skillforge/internal/contract"
	"github.com/initializ/skillforge/internal/manifest"
)

var toolsInstance string

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Inspect skills declared in the manifest",
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every skill and its declared instances",
	RunE:  runSkillsList,
}

var skillsToolsCmd = &cobra.Command{
	Use:   "tools <skill>",
	Short: "List the tools a skill's instance declares, without running anything",
	Args:  cobra.ExactArgs(1),
	RunE:  runSkillsTools,
}

func init() {
	skillsToolsCmd.Flags().StringVar(&toolsInstance, "instance", string(contract.DefaultInstanceId), "named instance to inspect")

	skillsCmd.AddCommand(skillsListCmd)
	skillsCmd.AddCommand(skillsToolsCmd)
	rootCmd.AddCommand(skillsCmd)
}

func runSkillsList(cmd *cobra.Command, args []string) error {
	m, err := manifest.LoadFile(cfgFile)
	if err != nil {
		return fmt.Errorf("loading manifest %s: %w", cfgFile, err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SKILL\tRUNTIME\tINSTANCES")
	for _, id := range m.SkillIDs() {
		sk := m.Skills[string(id)]
		instances := m.InstanceIDs(id)
		names := make([]string, len(instances))
		for i, inst := range instances {
			names[i] = string(inst)
		}
		fmt.Fprintf(w, "%s\t%s\t%v\n", id, sk.Runtime, names)
	}
	return w.Flush()
}

func runSkillsTools(cmd *cobra.Command, args []string) error {
	mgr, err := loadManager()
	if err != nil {
		return err
	}

	sess, f := mgr.Open(correlatedContext(), contract.SkillId(args[0]), contract.InstanceId(toolsInstance))
	if f != nil {
		return fmt.Errorf("%s: %s", f.Kind, f.Message)
	}

	tools := sess.ListTools()
	if len(tools) == 0 {
		fmt.Println("(no tools declared)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tPARAMETERS\tDESCRIPTION")
	for _, t := range tools {
		params := make([]string, len(t.Parameters))
		for i, p := range t.Parameters {
			if p.Required {
				params[i] = p.Name + "!"
			} else {
				params[i] = p.Name
			}
		}
		fmt.Fprintf(w, "%s\t%v\t%s\n", t.Name, params, t.Description)
	}
	return w.Flush()
}
