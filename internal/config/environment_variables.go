package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

const (
	EnvironmentVariablePrefix = "MC_"

	fileSuffix = "_FILE"
)

// SetFlagsFromEnvVariables sets flags from environment variables. Each flag
// can be set with an env variable whose name starts with `MC_`, e.g.
// --auth-mode with MC_AUTH_MODE. Alternatively an env variable suffixed with
// `_FILE` names a file holding the value, e.g. MC_TOKEN_FILE.
func SetFlagsFromEnvVariables(fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		envVar := flagToEnvVarName(f)
		if val, present := os.LookupEnv(envVar); present {
			err = errors.Wrapf(fs.Set(f.Name, val), "setting flag from %s", envVar)
			return
		}
		if strings.HasSuffix(envVar, fileSuffix) {
			return
		}
		if path, present := os.LookupEnv(envVar + fileSuffix); present {
			content, readErr := os.ReadFile(path)
			if readErr != nil {
				err = errors.Wrapf(readErr, "reading %s", envVar+fileSuffix)
				return
			}
			err = errors.Wrapf(fs.Set(f.Name, string(content)), "setting flag from %s", envVar+fileSuffix)
		}
	})
	return err
}

func flagToEnvVarName(f *pflag.Flag) string {
	return fmt.Sprintf("%s%s", EnvironmentVariablePrefix, strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_"))
}
