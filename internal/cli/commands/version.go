package commands

import (
	"runtime"

	"github.com/spf13/cobra"
)

// versionInfo is the structured form of `fedplan version`.
type versionInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
	Go        string `json:"go" yaml:"go"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(version, commit, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display fedplan version and build information.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := NewCommandContextWithoutStore(cmd).Renderer
			info := versionInfo{Version: version, Commit: commit, BuildDate: buildDate, Go: runtime.Version()}
			if handled, err := r.Structured(info); handled {
				return err
			}
			r.Printf("fedplan v%s\n", info.Version)
			r.Printf("commit %s, built %s with %s\n", info.Commit, info.BuildDate, info.Go)
			return nil
		},
	}
}
