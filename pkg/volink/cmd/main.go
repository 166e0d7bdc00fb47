package main

import (
	"flag"
	"fmt"

	"github.com/MixyLabs/volink/pkg/volink"
)

var (
	gitCommit  string
	versionTag string
	buildType  string

	verbose   bool
	forceLink bool
)

func init() {
	flag.BoolVar(&verbose, "verbose", false, "show verbose logs (useful for debugging)")
	flag.BoolVar(&verbose, "v", false, "shorthand for --verbose")
	flag.BoolVar(&forceLink, "link", false, "link the saved device pair on startup even if it was unlinked on exit")
	flag.BoolVar(&forceLink, "l", false, "shorthand for --link")
	flag.Parse()
}

func main() {
	logger, err := volink.NewLogger(buildType)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}

	named := logger.Named("main")
	named.Debug("Created logger")

	named.Infow("Version info",
		"gitCommit", gitCommit,
		"versionTag", versionTag,
		"buildType", buildType)

	if verbose {
		named.Debug("Verbose flag provided, all log messages will be shown")
	}

	v, err := volink.NewVolink(logger, verbose)
	if err != nil {
		named.Fatalw("Failed to create volink object", "error", err)
	}

	v.SetForceLink(forceLink)

	if buildType != "" && (versionTag != "" || gitCommit != "") {
		identifier := gitCommit
		if versionTag != "" {
			identifier = versionTag
		}

		versionString := fmt.Sprintf("Version %s-%s", buildType, identifier)
		v.SetVersion(versionString)
	}

	if err = v.Initialize(); err != nil {
		named.Fatalw("Failed to initialize volink", "error", err)
	}
}
