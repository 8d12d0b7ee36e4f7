package delegate

import (
	"github.com/google/wire"
)

// ProviderSet provides the encryption delegates.
var ProviderSet = wire.NewSet(
	ProvideLocalDelegate,
	ProvideRemoteDelegate,
	ProvideDispatcher,
)

func ProvideLocalDelegate(masterKey []byte) (*LocalDelegate, error) {
	return NewLocalDelegate(masterKey)
}

func ProvideRemoteDelegate(cfg Conf) *RemoteDelegate {
	return NewRemoteDelegate(cfg)
}

func ProvideDispatcher(local *LocalDelegate, remote *RemoteDelegate) *Dispatcher {
	return NewDispatcher(local, remote)
}
