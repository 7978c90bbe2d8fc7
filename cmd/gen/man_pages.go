package gen

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/luma/tvremote/internal/meta"
)

var manDir string

var ManPagesCmd = &cobra.Command{
	Use:   "man",
	Short: "Generate man pages for tvremote",
	Long: `Generate up-to-date man pages for every tvremote command. By default
the files are written to the "man" directory under the current directory.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		header := &doc.GenManHeader{
			Section: "1",
			Manual:  "tvremote Manual",
			Source:  fmt.Sprintf("tvremote %s", meta.GetInfo().DisplayVersion()),
		}

		dir, err := prepareDir(out, manDir)
		if err != nil {
			return err
		}

		cmd.Root().DisableAutoGenTag = true

		fmt.Fprintln(out, "Generating man pages in", dir, "...")

		if err := doc.GenManTree(cmd.Root(), header, dir); err != nil {
			return err
		}

		fmt.Fprintln(out, "Done.")

		return nil
	},
}

func init() {
	addDirFlag(ManPagesCmd, &manDir, "man/")
}
