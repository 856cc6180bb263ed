package dispatch

// Tag identifies the shape and sync/async semantics of a message sent
// through a Queue. The tag table is fixed at construction time, mirroring
// a table of tags fixed at construction.
type Tag int

const (
	TagWakeup Tag = iota
	TagOOM
	TagStart
	TagStop
	TagUpdateArea
	TagUpdateAreaAsync
	TagAddMemslot
	TagAddMemslotAsync
	TagDelMemslot
	TagResetMemslots
	TagDestroySurfaces
	TagDestroySurfacesAsync
	TagCreatePrimarySurface
	TagCreatePrimarySurfaceAsync
	TagDestroyPrimarySurface
	TagDestroyPrimarySurfaceAsync
	TagResetImageCache
	TagResetCursor
	TagDestroySurfaceWait
	TagDestroySurfaceWaitAsync
	TagLoadvmCommands
	TagFlushSurfacesAsync
	TagMonitorsConfigAsync
	TagGLScanout
	TagGLDrawAsync
	TagSetCompression
	TagSetStreamingVideo
	TagSetMouseMode
	TagDriverUnload
	TagDisplayConnect
	TagDisplayDisconnect
	TagDisplayMigrate
	TagCursorConnect
	TagCursorDisconnect
	TagCursorMigrate
	TagStopWorker
)

// String names each tag for logging; unknown tags fall back to "UNKNOWN"
// rather than panicking (async_complete must forward progress on an
// unrecognized tag).
func (t Tag) String() string {
	switch t {
	case TagWakeup:
		return "WAKEUP"
	case TagOOM:
		return "OOM"
	case TagStart:
		return "START"
	case TagStop:
		return "STOP"
	case TagUpdateArea:
		return "UPDATE_AREA"
	case TagUpdateAreaAsync:
		return "UPDATE_AREA_ASYNC"
	case TagAddMemslot:
		return "ADD_MEMSLOT"
	case TagAddMemslotAsync:
		return "ADD_MEMSLOT_ASYNC"
	case TagDelMemslot:
		return "DEL_MEMSLOT"
	case TagResetMemslots:
		return "RESET_MEMSLOTS"
	case TagDestroySurfaces:
		return "DESTROY_SURFACES"
	case TagDestroySurfacesAsync:
		return "DESTROY_SURFACES_ASYNC"
	case TagCreatePrimarySurface:
		return "CREATE_PRIMARY_SURFACE"
	case TagCreatePrimarySurfaceAsync:
		return "CREATE_PRIMARY_SURFACE_ASYNC"
	case TagDestroyPrimarySurface:
		return "DESTROY_PRIMARY_SURFACE"
	case TagDestroyPrimarySurfaceAsync:
		return "DESTROY_PRIMARY_SURFACE_ASYNC"
	case TagResetImageCache:
		return "RESET_IMAGE_CACHE"
	case TagResetCursor:
		return "RESET_CURSOR"
	case TagDestroySurfaceWait:
		return "DESTROY_SURFACE_WAIT"
	case TagDestroySurfaceWaitAsync:
		return "DESTROY_SURFACE_WAIT_ASYNC"
	case TagLoadvmCommands:
		return "LOADVM_COMMANDS"
	case TagFlushSurfacesAsync:
		return "FLUSH_SURFACES_ASYNC"
	case TagMonitorsConfigAsync:
		return "MONITORS_CONFIG_ASYNC"
	case TagGLScanout:
		return "GL_SCANOUT"
	case TagGLDrawAsync:
		return "GL_DRAW_ASYNC"
	case TagSetCompression:
		return "SET_COMPRESSION"
	case TagSetStreamingVideo:
		return "SET_STREAMING_VIDEO"
	case TagSetMouseMode:
		return "SET_MOUSE_MODE"
	case TagDriverUnload:
		return "DRIVER_UNLOAD"
	case TagDisplayConnect:
		return "DISPLAY_CONNECT"
	case TagDisplayDisconnect:
		return "DISPLAY_DISCONNECT"
	case TagDisplayMigrate:
		return "DISPLAY_MIGRATE"
	case TagCursorConnect:
		return "CURSOR_CONNECT"
	case TagCursorDisconnect:
		return "CURSOR_DISCONNECT"
	case TagCursorMigrate:
		return "CURSOR_MIGRATE"
	case TagStopWorker:
		return "STOP_WORKER"
	default:
		return "UNKNOWN"
	}
}

// asyncTags is the async set: tags whose submitter
// allocates an AsyncCommand and expects a later async_complete callback.
var asyncTags = map[Tag]bool{
	TagUpdateAreaAsync:            true,
	TagAddMemslotAsync:            true,
	TagDestroySurfacesAsync:       true,
	TagDestroySurfaceWaitAsync:    true,
	TagCreatePrimarySurfaceAsync:  true,
	TagDestroyPrimarySurfaceAsync: true,
	TagFlushSurfacesAsync:         true,
	TagMonitorsConfigAsync:        true,
	TagGLDrawAsync:                true,
}

// IsAsync reports whether tag belongs to the async set.
func IsAsync(t Tag) bool {
	return asyncTags[t]
}

// syncTags are processed synchronously: Send blocks until the worker has
// applied the message and returns an in-band reply.
var syncTags = map[Tag]bool{
	TagDisplayDisconnect: true,
	TagDisplayMigrate:    true,
	TagCursorDisconnect:  true,
	TagCursorMigrate:     true,
	TagUpdateArea:        true,
}

// IsSync reports whether a Send for tag must block for a reply.
func IsSync(t Tag) bool {
	return syncTags[t]
}
