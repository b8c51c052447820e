package ports

// HostContext identifies the foreground host surface a purchase flow
// attaches to, the service rendition of the original host-activity handle.
type HostContext interface {
	HostID() string
}

// HostProvider resolves the current host surface. A nil result means no
// host is attached right now; starting a connection without one is a usage
// error, and purchase flows re-check availability at call time.
type HostProvider interface {
	Host() HostContext
}

// HostProviderFunc adapts a function to the HostProvider interface.
type HostProviderFunc func() HostContext

func (f HostProviderFunc) Host() HostContext { return f() }
