package capability

import (
	"fmt"
	"os"
	"strings"
)

// forbiddenArgPatterns reject privilege-elevation and shell-breakout
// attempts before a host command is ever spawned.
var forbiddenArgPatterns = []string{
	"$(", "`", "|", ";", "&&", "||", ">", "<", "\n",
}

// forbiddenFlags are argv elements that escalate privilege regardless of
// which base command they're attached to.
var forbiddenFlags = []string{
	"--privileged", "sudo", "-S", "setuid",
}

// HostCommandCheck validates a (base_command, argv_tail) pair against a
// skill's static command allow-list before fork/exec, per spec.md §4.5.2.
func HostCommandCheck(allowedCommands []string, baseCommand string, argv []string) *ContainerViolation {
	if !containsCommand(allowedCommands, baseCommand) {
		return &ContainerViolation{Arg: baseCommand, Reason: "command not in allow-list"}
	}
	for _, a := range argv {
		for _, pat := range forbiddenArgPatterns {
			if strings.Contains(a, pat) {
				return &ContainerViolation{Arg: a, Reason: "argument contains unescaped shell metacharacter"}
			}
		}
		for _, f := range forbiddenFlags {
			if strings.EqualFold(a, f) {
				return &ContainerViolation{Arg: a, Reason: "disallowed flag for host-command skills"}
			}
		}
	}
	return nil
}

func containsCommand(list []string, cmd string) bool {
	for _, c := range list {
		if c == cmd {
			return true
		}
	}
	return false
}

// HostEnvironment builds the minimal environment for a spawned host
// command: PATH and HOME, plus the instance's own env map — never the
// full inherited environment, so the skill cannot observe unrelated
// process secrets.
func HostEnvironment(instanceEnv map[string]string) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + os.Getenv("HOME"),
	}
	for k, v := range instanceEnv {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
