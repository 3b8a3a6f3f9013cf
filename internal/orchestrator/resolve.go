package orchestrator

import (
	"fmt"

	"github.com/unioslo/tacl/internal/tacenv"
	"github.com/unioslo/tacl/internal/transfer"
)

// Resolution is the (env, tenant, group, remote_path) tuple the
// orchestrator resolves from flags and YAML config before calling into
// the core.
type Resolution struct {
	Env        tacenv.Environment
	Pnum       string
	Group      string
	RemotePath string
}

// Resolve validates envName and pnum, and applies the group tie-break
// rule when the caller left group empty. remotePath passes through
// unchanged — an empty remote_path means "the sync root itself".
func Resolve(envName, pnum, group, remotePath string) (Resolution, error) {
	env, err := tacenv.ParseEnvironment(envName)
	if err != nil {
		return Resolution{}, fmt.Errorf("orchestrator: %w", err)
	}

	if pnum == "" {
		return Resolution{}, fmt.Errorf("orchestrator: a tenant (pnum) is required")
	}

	if group == "" {
		group = transfer.DefaultGroup(pnum)
	}

	return Resolution{Env: env, Pnum: pnum, Group: group, RemotePath: remotePath}, nil
}
