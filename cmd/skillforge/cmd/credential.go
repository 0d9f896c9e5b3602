package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/initializ/skillforge/internal/contract"
)

var credentialInstance string

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage per-instance credentials in the configured keychain",
}

var credentialSetCmd = &cobra.Command{
	Use:   "set <skill> <key>",
	Short: "Store a secret value for a skill instance, prompting for the value",
	Args:  cobra.ExactArgs(2),
	RunE:  runCredentialSet,
}

var credentialGetCmd = &cobra.Command{
	Use:   "get <skill> <key>",
	Short: "Print a stored secret value",
	Args:  cobra.ExactArgs(2),
	RunE:  runCredentialGet,
}

var credentialDeleteCmd = &cobra.Command{
	Use:   "delete <skill> <key>",
	Short: "Remove a stored secret value",
	Args:  cobra.ExactArgs(2),
	RunE:  runCredentialDelete,
}

var credentialListCmd = &cobra.Command{
	Use:   "list <skill>",
	Short: "List the credential keys stored for a skill instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialList,
}

func init() {
	for _, c := range []*cobra.Command{credentialSetCmd, credentialGetCmd, credentialDeleteCmd, credentialListCmd} {
		c.Flags().StringVar(&credentialInstance, "instance", string(contract.DefaultInstanceId), "named instance the secret belongs to")
	}

	credentialCmd.AddCommand(credentialSetCmd, credentialGetCmd, credentialDeleteCmd, credentialListCmd)
	rootCmd.AddCommand(credentialCmd)
}

func runCredentialSet(cmd *cobra.Command, args []string) error {
	skillID, key := args[0], args[1]

	fmt.Fprint(os.Stderr, "Value: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("reading value: %w", err)
	}

	store := loadCredentialStore()
	if f := store.Put(contract.SkillId(skillID), contract.InstanceId(credentialInstance), key, string(raw)); f != nil {
		return fmt.Errorf("%s: %s", f.Kind, f.Message)
	}
	fmt.Printf("stored %s/%s/%s\n", skillID, credentialInstance, key)
	return nil
}

func runCredentialGet(cmd *cobra.Command, args []string) error {
	skillID, key := args[0], args[1]

	store := loadCredentialStore()
	value, f := store.Get(contract.SkillId(skillID), contract.InstanceId(credentialInstance), key)
	if f != nil {
		return fmt.Errorf("%s: %s", f.Kind, f.Message)
	}
	fmt.Println(value)
	return nil
}

func runCredentialDelete(cmd *cobra.Command, args []string) error {
	skillID, key := args[0], args[1]

	store := loadCredentialStore()
	if f := store.Delete(contract.SkillId(skillID), contract.InstanceId(credentialInstance), key); f != nil {
		return fmt.Errorf("%s: %s", f.Kind, f.Message)
	}
	fmt.Printf("deleted %s/%s/%s\n", skillID, credentialInstance, key)
	return nil
}

func runCredentialList(cmd *cobra.Command, args []string) error {
	skillID := args[0]

	store := loadCredentialStore()
	keys, f := store.List(contract.SkillId(skillID), contract.InstanceId(credentialInstance))
	if f != nil {
		return fmt.Errorf("%s: %s", f.Kind, f.Message)
	}
	if len(keys) == 0 {
		fmt.Println("(no credentials stored)")
		return nil
	}
	for _, k := range keys {
		fmt.Println(k)
	}
	return nil
}
