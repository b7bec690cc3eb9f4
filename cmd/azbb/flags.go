package main

import (
	"fmt"
	"strings"

	"github.com/flavioaiello/azure-building-blocks/pkg/config"
)

// deployModeValue adapts config.DeployMode to pflag.Value.
type deployModeValue config.DeployMode

func (v *deployModeValue) String() string {
	return string(*v)
}

func (v *deployModeValue) Set(s string) error {
	switch m := config.DeployMode(strings.ToLower(s)); m {
	case config.DeployModeCLI, config.DeployModeARM:
		*v = deployModeValue(m)
		return nil
	default:
		return fmt.Errorf("%w: %s", config.ErrInvalidDeployMode, s)
	}
}

func (v *deployModeValue) Type() string {
	return "mode"
}
