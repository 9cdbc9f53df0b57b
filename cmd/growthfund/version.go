package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/bobmcallan/growthfund/internal/common"
)

type versionCmd struct{}

func (*versionCmd) Name() string             { return "version" }
func (*versionCmd) Synopsis() string         { return "print version information" }
func (*versionCmd) Usage() string            { return "growthfund version\n" }
func (*versionCmd) SetFlags(_ *flag.FlagSet) {}

func (*versionCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	common.LoadVersionFromFile()
	fmt.Printf("growthfund %s\n", common.GetFullVersion())
	return subcommands.ExitSuccess
}
