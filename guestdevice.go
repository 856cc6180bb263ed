package channeld

// GuestDevice is the callback surface a Dispatcher's worker goroutine
// calls back into once it has applied a dispatched message: the guest
// graphics instance that owns the Dispatcher, standing in for the
// QXLInterface function-pointer table (async_complete,
// set_compression_level, client_monitors_config) of the original fabric.
//
// Implementations must be safe to call from the worker goroutine; they
// must never call back into the Dispatcher that owns them synchronously,
// since that would deadlock against the queue's sync-send path.
type GuestDevice interface {
	// AsyncComplete is invoked exactly once per cookie previously
	// allocated by AsyncRegistry.Alloc, after the tag-specific
	// post-action has already been applied to the Dispatcher.
	AsyncComplete(cookie uint64)

	// SetCompressionLevel notifies the device of a new effective
	// compression level, recomputed by Registry.SetImageCompression /
	// SetStreamingVideo.
	SetCompressionLevel(level int)
}

// MonitorsConfigNotifier is the hook for client monitor-configuration
// requests, mirroring red_dispatcher_client_monitors_config in the
// original fabric. Optional: a Dispatcher works without it, and nothing
// in this package calls it; MonitorsConfigAsync only enqueues
// MONITORS_CONFIG_ASYNC to the worker.
type MonitorsConfigNotifier interface {
	ClientMonitorsConfig(groupID int, monitorsConfig uint64)
}
