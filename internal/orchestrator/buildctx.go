package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-getter"
	"github.com/mholt/archiver"
	"github.com/otiai10/copy"
	"gopkg.in/yaml.v3"

	"github.com/mauriceyap/diorama/internal/api"
	"github.com/mauriceyap/diorama/internal/runtimecatalog"
)

// materialiseBuildContext assembles the per-program build context tree: the
// runtime's base files, the address map, the connection parameter map, and
// the user's code under user_node_files/.
func (o *Orchestrator) materialiseBuildContext(
	dir string,
	program api.Program,
	nodeAddresses []api.NodeAddress,
	connParamsByNode map[string]map[string]api.ConnectionParameters,
) error {
	entry, err := runtimecatalog.Lookup(program.Runtime)
	if err != nil {
		return err
	}

	baseDir := filepath.Join(o.baseNodeFilesDir, program.Runtime)
	if _, err := os.Stat(baseDir); err == nil {
		if err := copy.Copy(baseDir, dir); err != nil {
			return fmt.Errorf("copying base files for runtime %s: %w", program.Runtime, err)
		}
	}

	addrBytes, err := yaml.Marshal(nodeAddresses)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "node_addresses.yml"), addrBytes, 0o644); err != nil {
		return err
	}

	paramBytes, err := yaml.Marshal(connParamsByNode)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "connection_parameters.yml"), paramBytes, 0o644); err != nil {
		return err
	}

	userDir := filepath.Join(dir, "user_node_files")
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return err
	}

	switch program.CodeSource {
	case api.CodeSourceRaw:
		dst := filepath.Join(userDir, "node"+entry.Extension)
		if err := os.WriteFile(dst, []byte(program.CodeData), 0o644); err != nil {
			return err
		}
	case api.CodeSourceZip:
		zipDir := filepath.Join(o.outputsDir, "program_zip_files")
		src := filepath.Join(zipDir, program.Name+".zip")
		if err := archiver.NewZip().Unarchive(src, userDir); err != nil {
			return fmt.Errorf("unpacking zip for program %s: %w", program.Name, err)
		}
	case api.CodeSourceGit:
		if err := getter.Get(userDir, program.CodeData); err != nil {
			return fmt.Errorf("fetching git source for program %s: %w", program.Name, err)
		}
	default:
		// Unknown code source surfaces as a failed transition and a reset,
		// not a crash.
		return fmt.Errorf("unknown code source: %s", program.CodeSource)
	}

	return nil
}

// rewrittenMainHandler is "node.<handler>", the main_handler rewrite raw
// code sources require.
func rewrittenMainHandler(program api.Program) string {
	if program.CodeSource != api.CodeSourceRaw {
		return program.MainHandler
	}
	return "node." + program.MainHandler
}
