package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ Reconciler      = (*Service)(nil)
	_ RunLocker       = (*MemoryRunLocker)(nil)
	_ CredentialCodec = JSONCredentialCodec{}
	_ ConfigProvider  = (*CfgxConfigProvider)(nil)
	_ OptionsResolver = GoOptionsResolver{}
	_ RawConfigLoader = StaticRawConfigLoader{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
