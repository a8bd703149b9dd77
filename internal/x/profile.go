package x

import (
	"github.com/pkg/errors"
	"github.com/pkg/profile"
	"github.com/spf13/viper"
)

type stopper interface {
	Stop()
}

// StartProfile starts the profiler selected by the profile_mode setting of
// conf. The returned stopper must be stopped before the process exits.
func StartProfile(conf *viper.Viper, dir string) (stopper, error) {
	path := profile.ProfilePath(dir)
	switch mode := conf.GetString("profile_mode"); mode {
	case "cpu":
		return profile.Start(profile.CPUProfile, path, profile.Quiet), nil
	case "mem":
		return profile.Start(profile.MemProfile, path, profile.Quiet), nil
	case "":
		return noOpStopper{}, nil
	default:
		return nil, errors.Errorf("invalid profile mode %q, one of [cpu, mem]", mode)
	}
}

type noOpStopper struct{}

func (noOpStopper) Stop() {}
