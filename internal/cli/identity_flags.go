package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/umhmon/umh/internal/identity"
)

// identityFlags describe a process without capturing a live one.
type identityFlags struct {
	image            string
	commandLine      string
	parent           string
	parentUnopenable bool
	is32Bit          bool
}

func (f *identityFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.image, "image", "", `Image path of the process, e.g. C:\Windows\System32\svchost.exe`)
	cmd.Flags().StringVar(&f.commandLine, "cmdline", "", "Command line of the process")
	cmd.Flags().StringVar(&f.parent, "parent", "", "Image path of the parent process")
	cmd.Flags().BoolVar(&f.parentUnopenable, "parent-unopenable", false, "The parent cannot be opened for query")
	cmd.Flags().BoolVar(&f.is32Bit, "32bit", false, "Classify as a 32-bit monitor")
}

func (f *identityFlags) set() bool { return f.image != "" }

func (f *identityFlags) facts(pid uint32) identity.Facts {
	facts := identity.Facts{
		PID:            pid,
		ImagePath:      f.image,
		Name:           imageName(f.image),
		CommandLine:    f.commandLine,
		ParentOpenable: !f.parentUnopenable,
	}
	if f.parent != "" {
		facts.Ancestors = []identity.Process{{Name: imageName(f.parent), ImagePath: f.parent}}
	}
	return facts
}

func imageName(path string) string {
	if i := strings.LastIndexAny(path, `\/`); i >= 0 {
		return path[i+1:]
	}
	return path
}
