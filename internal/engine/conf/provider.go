package conf

import (
	"github.com/google/wire"
)

// ProviderSet provides configuration instances.
var ProviderSet = wire.NewSet(ProvideConf)

func ProvideConf(configFile string) AppConfig {
	return NewConf(configFile)
}
