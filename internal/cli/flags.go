package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arclet/subprocess/internal/subprocess"
)

// credentialFlags holds the uid/gid/session/process-group flags shared by
// the run, spawn-detached and supervise commands.
type credentialFlags struct {
	uid          int32
	gid          int32
	groups       []int32
	createSess   bool
	processGroup int32
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int32Var(&f.uid, "uid", -1, "run the child as this uid (default: inherit)")
	cmd.Flags().Int32Var(&f.gid, "gid", -1, "run the child as this gid (default: inherit)")
	cmd.Flags().Int32SliceVar(&f.groups, "supplementary-group", nil, "supplementary gid (repeatable)")
	cmd.Flags().BoolVar(&f.createSess, "session", false, "detach from the controlling terminal and start a new session")
	cmd.Flags().Int32Var(&f.processGroup, "process-group", -1, "join this existing process group id (mutually exclusive with --session)")
}

func (f *credentialFlags) toCredentials() (subprocess.Credentials, error) {
	var creds subprocess.Credentials
	if f.uid >= 0 {
		uid := uint32(f.uid)
		creds.UID = &uid
	}
	if f.gid >= 0 {
		gid := uint32(f.gid)
		creds.GID = &gid
	}
	if len(f.groups) > 0 {
		groups := make([]uint32, len(f.groups))
		for i, g := range f.groups {
			groups[i] = uint32(g)
		}
		creds.SupplementaryGroups = groups
	}
	creds.CreateSession = f.createSess
	if f.processGroup >= 0 {
		pgid := int(f.processGroup)
		creds.ProcessGroupID = &pgid
	}
	if creds.CreateSession && creds.ProcessGroupID != nil {
		return subprocess.Credentials{}, fmt.Errorf("--session and --process-group are mutually exclusive")
	}
	return creds, nil
}

// envFlags holds the --env, --inherit-env and --dir flags shared by the run,
// spawn-detached and supervise commands.
type envFlags struct {
	vars       []string
	inheritEnv bool
	dir        string
}

func (f *envFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&f.vars, "env", nil, "KEY=VALUE to set in the child's environment (repeatable)")
	cmd.Flags().BoolVar(&f.inheritEnv, "inherit-env", true, "start from the current process environment before applying --env")
	cmd.Flags().StringVar(&f.dir, "dir", "", "working directory for the child (default: inherit)")
}

func (f *envFlags) toEnv() []string {
	if len(f.vars) == 0 {
		if f.inheritEnv {
			return nil // nil means "inherit" to subprocess.SpawnRequest
		}
		return []string{}
	}
	var env []string
	if f.inheritEnv {
		env = append(env, os.Environ()...)
	}
	env = append(env, f.vars...)
	return env
}
