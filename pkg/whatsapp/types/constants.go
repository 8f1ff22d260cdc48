package types

// Header names carrying the gateway API key.
const (
	HeaderWAHAKey      = "X-Api-Key"
	HeaderEvolutionKey = "apikey"
)

// WAHA endpoints. Session-scoped paths take the session name first.
const (
	APIBase                = "/api"
	EndpointLIDs           = "/lids"
	EndpointGroups         = "/groups"
	EndpointGroupPicture   = "/picture"
	EndpointProfilePicture = "/contacts/profile-picture"
	EndpointSessions       = "/sessions"
)

// Evolution endpoints. Each takes the instance name as its last segment.
const (
	EndpointFindGroupInfos  = "/group/findGroupInfos"
	EndpointConnectionState = "/instance/connectionState"
	EndpointFetchProfilePic = "/chat/fetchProfilePictureUrl"
)

// SessionStatus is a WAHA session status.
type SessionStatus string

const (
	SessionStatusStarting   SessionStatus = "STARTING"
	SessionStatusScanQRCode SessionStatus = "SCAN_QR_CODE"
	SessionStatusWorking    SessionStatus = "WORKING"
	SessionStatusStopped    SessionStatus = "STOPPED"
	SessionStatusFailed     SessionStatus = "FAILED"
)
