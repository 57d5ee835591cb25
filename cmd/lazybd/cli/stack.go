package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weftimage/lazybd"
	"github.com/weftimage/lazybd/core"
)

var stackCmd = &cobra.Command{
	Use:   "stack <directory:digest:size>...",
	Short: "Open an ordered set of lower layers and report the top-of-stack size",
	Long: `Open every given layer in parallel and combine them into a single
logical volume.

Each lower is given as directory:digest:size. LSMT stacking itself — how
an ordered list of layer files becomes one logical volume — is an
external concern; this command uses a minimal placeholder stacker that
returns the topmost lower, and reports that lower's size, rather than
performing real block-level composition.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStack,
}

func init() {
	rootCmd.AddCommand(stackCmd)
}

func runStack(_ *cobra.Command, args []string) error {
	layers := make([]core.LayerIdentity, len(args))
	for i, arg := range args {
		parts := strings.SplitN(arg, ":", 3)
		if len(parts) != 3 {
			return fmt.Errorf("invalid lower %q, want directory:digest:size", arg)
		}
		digest, err := core.ParseDigest(parts[1])
		if err != nil {
			return err
		}
		var size int64
		if _, err := fmt.Sscanf(parts[2], "%d", &size); err != nil {
			return fmt.Errorf("invalid size in %q: %w", arg, err)
		}
		layers[i] = core.LayerIdentity{Directory: parts[0], Digest: digest, Size: size}
	}

	client, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	status := lazybd.NewImageStatus()
	f, err := client.OpenLowers(ctx, layers, reportingStacker{}, status)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	fmt.Printf("stacked %d layers, top-of-stack size %s\n", len(layers), formatSize(info.Size))
	return nil
}

// reportingStacker is a placeholder lazybd.Stacker: it does not perform
// real LSMT composition, since that is an external concern, but returns
// the topmost lower so the command has something to report on.
type reportingStacker struct{}

func (reportingStacker) Stack(lowers []core.File) (core.File, error) {
	if len(lowers) == 0 {
		return nil, fmt.Errorf("no lowers to stack")
	}
	return lowers[len(lowers)-1], nil
}
