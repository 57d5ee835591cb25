package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/weftimage/lazybd"
	"github.com/weftimage/lazybd/core"
	"github.com/weftimage/lazybd/internal/layercache"
	"github.com/weftimage/lazybd/internal/switchfile"
)

var openCmd = &cobra.Command{
	Use:   "open <directory> <digest> <size>",
	Short: "Open a single layer and report its effective backing",
	Long: `Open a single remote-or-local layer by identity and print whether it is
served from its local commit file or straight from the remote blob.

directory is where the layer's commit file lives (or will live);
digest is its "sha256:..." content digest; size is the remote blob's
size in bytes.`,
	Args: cobra.ExactArgs(3),
	RunE: runOpen,
}

func init() {
	rootCmd.AddCommand(openCmd)
}

func runOpen(_ *cobra.Command, args []string) error {
	directory, digestStr, sizeStr := args[0], args[1], args[2]

	digest, err := core.ParseDigest(digestStr)
	if err != nil {
		return err
	}
	var size int64
	if _, err := fmt.Sscanf(sizeStr, "%d", &size); err != nil {
		return fmt.Errorf("invalid size %q: %w", sizeStr, err)
	}

	client, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	status := lazybd.NewImageStatus()
	f, err := client.Open(ctx, core.LayerIdentity{Directory: directory, Digest: digest, Size: size}, status)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	backing := "unknown backing"
	if ref, ok := f.(*layercache.Ref); ok {
		if sf, ok := ref.File.(*switchfile.SwitchFile); ok {
			backing = "remote blob"
			if sf.Phase() == switchfile.PhaseLocal {
				backing = "local commit file"
			}
		}
	}
	fmt.Printf("opened %s (%s): %s\n", directory, backing, formatSize(info.Size))
	return nil
}

// formatSize renders size as a human-readable byte count on a terminal, or
// as a bare integer when the output is piped.
func formatSize(size int64) string {
	if humanOutput() {
		return humanize.Bytes(uint64(size))
	}
	return fmt.Sprintf("%d", size)
}
