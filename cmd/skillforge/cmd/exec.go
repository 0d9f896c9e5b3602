package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/initializ/skillforge/internal/contract"
)

var (
	execInstance string
	execArgsJSON string
)

var execCmd = &cobra.Command{
	Use:   "exec <skill> <tool>",
	Short: "Execute one tool call against a skill instance",
	Args:  cobra.ExactArgs(2),
	RunE:  runExec,
}

func init() {
	execCmd.Flags().StringVar(&execInstance, "instance", string(contract.DefaultInstanceId), "named instance to run against")
	execCmd.Flags().StringVar(&execArgsJSON, "args", "{}", "tool arguments as a JSON object")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	skillID, toolName := args[0], args[1]

	if !json.Valid([]byte(execArgsJSON)) {
		return fmt.Errorf("--args is not valid JSON: %s", execArgsJSON)
	}

	mgr, err := loadManager()
	if err != nil {
		return err
	}

	ctx := correlatedContext()
	sess, f := mgr.Open(ctx, contract.SkillId(skillID), contract.InstanceId(execInstance))
	if f != nil {
		return fmt.Errorf("%s: %s", f.Kind, f.Message)
	}

	result := sess.ExecuteTool(ctx, toolName, []byte(execArgsJSON))
	if !result.IsSuccess() {
		fail := result.Failure()
		fmt.Fprintf(os.Stderr, "%s: %s\n", fail.Kind, fail.Message)
		os.Exit(1)
	}

	if text := result.Text(); text != "" {
		fmt.Println(text)
	}
	if data := result.StructuredData(); len(data) > 0 {
		fmt.Println(string(data))
	}
	return nil
}
