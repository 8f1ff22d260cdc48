package constants

import "time"

// Identity and idempotency windows
const (
	IdentityMappingTTL     = 30 * 24 * time.Hour
	GroupSubjectTTL        = 30 * 24 * time.Hour
	ParticipantNameTTL     = 30 * 24 * time.Hour
	DedupeMarkerTTL        = 24 * time.Hour
	ChannelLockTTL         = 30 * time.Second
	ChannelLockPoll        = 50 * time.Millisecond
	FallbackBindWindow     = 10 * time.Minute
	FallbackBindCandidates = 5
)

// Cache key formats
const (
	LIDMappingKeyFormat      = "wa:evo:lid_msisdn:%d:%s"
	GroupSubjectKeyFormat    = "wa:evo:group_subject:%d:%s"
	ParticipantNameKeyFormat = "wa:evo:participant_name:%d:%s"
	MessageSourceKeyFormat   = "MESSAGE_SOURCE_KEY::%d:%s"
	ChannelLockKeyFormat     = "EVOLUTION_CHANNEL_LOCK::%d"
)

// Provider call timeouts
const (
	DefaultProviderTimeoutSec = 10
	DefaultMediaTimeoutSec    = 15
)

// Server defaults
const (
	DefaultServerAddr            = ":8080"
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultMaxWebhookBodyBytes   = 5 << 20
	DefaultWebhookMaxSkewSec     = 300
	DefaultDatabaseRetryAttempts = 3
	DefaultDatabasePath          = "waingest.db"
	DefaultAMQPExchange          = "waingest.jobs"
	DefaultRedisDialTimeoutSec   = 5
	DefaultRedisIOTimeoutSec     = 3
	DefaultCircuitMaxFailures    = 5
	DefaultCircuitOpenSec        = 30
	DefaultProfileRefreshHours   = 12
	DefaultRateLimitPerMinute    = 600
)

// Webhook signature headers
const (
	HeaderEvolutionSignature = "X-Webhook-Signature"
	HeaderWAHAHmac           = "X-Webhook-Hmac"
	HeaderWAHAHmacAlgorithm  = "X-Webhook-Hmac-Algorithm"
	HeaderWAHATimestamp      = "X-Webhook-Timestamp"
)

// Content markers written onto stored messages
const (
	EditedMarker         = "✍️ edited"
	DeletedMarker        = "⛔ deleted"
	GroupSuffix          = "(GROUP)"
	GroupLabel           = "whatsapp-group"
	DefaultGroupName     = "WhatsApp Group"
	DefaultContactName   = "Contact"
	QRDataURIPrefix      = "data:image/png;base64,"
	DefaultConnection    = "close"
	ConnectionOpen       = "open"
	ConnectionConnecting = "connecting"
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
	DefaultMessageIDLength = 8
)

// Encryption at rest
const (
	EncryptionSalt        = "waingest-contact-encryption-v1"
	EncryptionIterations  = 100000
	EncryptionKeySize     = 32
	EncryptionNonceSize   = 12
	MinEncryptionKeyChars = 32
)

// Input limits
const (
	MaxSessionNameLength = 64
	MaxInboxCount        = 256
)
