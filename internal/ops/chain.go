package ops

import (
	"net"
	"os"
	"path/filepath"

	"github.com/aristath/fetchdeck/internal/log"
	"github.com/aristath/fetchdeck/internal/operation"
	"github.com/aristath/fetchdeck/internal/runner"
)

// ArchiveAfterMirror returns the chain that packs a finished mirror. It returns
// nil when enabled is false.
//
// wget writes the site under <output dir>/<host> (host:port for non-default
// ports), so that directory is archived when it exists; otherwise the whole
// output directory is.
func ArchiveAfterMirror(env *Env, enabled bool, params ArchiveParams) *runner.Chain {
	if !enabled {
		return nil
	}
	env = env.defaults()

	return &runner.Chain{
		Name: "archive",
		When: func(res operation.Result) bool {
			return res.Path != ""
		},
		Build: func(res operation.Result) (operation.Operation, error) {
			p := params
			p.Source = mirrorRoot(env.Logger, res)
			return NewArchive(env, p), nil
		},
	}
}

// mirrorRoot picks the directory a mirror result should be archived from.
func mirrorRoot(logger log.Logger, res operation.Result) string {
	host := res.Meta["host"]
	if host == "" {
		return res.Path
	}
	names := []string{host}
	if h, _, err := net.SplitHostPort(host); err == nil && h != "" {
		names = append(names, h)
	}
	for _, name := range names {
		candidate := filepath.Join(res.Path, name)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
	}
	logger.Warningf("Mirror of %s has no %s directory, archiving %s instead", res.Meta["url"], host, res.Path)
	return res.Path
}
