package configtest

import (
	"github.com/nspcc-dev/neofs-diskfile/cmd/neofs-diskfile/config"
)

func fromFile(path string) *config.Config {
	c, err := config.New(config.WithConfigFile(path))
	if err != nil {
		panic(err)
	}
	return c
}

// ForEachFileType passes configs read from next files:
//   - `<pref>.yaml`;
//   - `<pref>.json`.
func ForEachFileType(pref string, f func(*config.Config)) {
	for _, path := range []string{
		pref + ".yaml",
		pref + ".json",
	} {
		f(fromFile(path))
	}
}

// EmptyConfig returns config without any values and sections.
func EmptyConfig() *config.Config {
	c, err := config.New()
	if err != nil {
		panic(err)
	}
	return c
}
