package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ ProvisioningService = (*Service)(nil)
	_ UIHostProvider      = UIHostProviderFunc(nil)
	_ CompletionListener  = CompletionListenerFunc(nil)
	_ error               = (*APIError)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
