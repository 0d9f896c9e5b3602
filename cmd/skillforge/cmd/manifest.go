package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/initializ/skillforge/internal/manifest"
)

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Work with the skill manifest file",
}

var manifestValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Parse the manifest and report the first error, without building or running anything",
	Args:  cobra.NoArgs,
	RunE:  runManifestValidate,
}

func init() {
	manifestCmd.AddCommand(manifestValidateCmd)
	rootCmd.AddCommand(manifestCmd)
}

func runManifestValidate(cmd *cobra.Command, args []string) error {
	m, err := manifest.LoadFile(cfgFile)
	if err != nil {
		return err
	}

	resolver := manifest.NewResolver(m, nil, nil)
	for _, skillID := range m.SkillIDs() {
		for _, instanceID := range m.InstanceIDs(skillID) {
			if _, f := resolver.Resolve(skillID, instanceID); f != nil {
				return fmt.Errorf("%s/%s: %s: %s", skillID, instanceID, f.Kind, f.Message)
			}
		}
	}

	fmt.Printf("%s: %d skill(s) valid\n", cfgFile, len(m.Skills))
	return nil
}
