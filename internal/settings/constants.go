package settings

// Feature flag keys.
const (
	// FlagAutoHideReports enables pausing heavily reported listings.
	FlagAutoHideReports = "AUTO_HIDE_REPORTS"
	// FlagVideoFeed enables short-form video surfaces.
	FlagVideoFeed = "VIDEO_FEED"
	// FlagShadowBan enables shadow-ban moderation actions.
	FlagShadowBan = "SHADOW_BAN"
	// FlagOTPRequired requires the OTP flow for login.
	FlagOTPRequired = "OTP_REQUIRED"
	// FlagChatEnabled enables chat threads and messages.
	FlagChatEnabled = "CHAT_ENABLED"
	// FlagReportingEnabled enables report submission.
	FlagReportingEnabled = "REPORTING_ENABLED"
)

// DefaultFlag describes a seeded feature flag.
type DefaultFlag struct {
	Key         string
	Enabled     bool
	Description string
}

// DefaultFlags are inserted by migration when missing.
var DefaultFlags = []DefaultFlag{
	{Key: FlagAutoHideReports, Enabled: false, Description: "Automatically hide heavily reported listings."},
	{Key: FlagVideoFeed, Enabled: true, Description: "Enable short-form video feed surfaces."},
	{Key: FlagShadowBan, Enabled: false, Description: "Enable shadow-ban moderation actions."},
	{Key: FlagOTPRequired, Enabled: true, Description: "Require OTP login flow when enabled."},
	{Key: FlagChatEnabled, Enabled: true, Description: "Enable buyer-seller chat threads and messages."},
	{Key: FlagReportingEnabled, Enabled: true, Description: "Allow users to submit moderation reports."},
}

// Rate-limited route names. Rules are configured per name.
const (
	RouteDefault     = "default"
	RouteOTPRequest  = "otp-request"
	RouteOTPVerify   = "otp-verify"
	RouteSignup      = "signup"
	RouteLogin       = "login"
	RouteChatMessage = "chat-message"
	RouteReports     = "reports"
	RouteMediaSign   = "media-sign"
)

// Listing and feed defaults.
const (
	// DefaultCurrency is applied when a listing omits its currency.
	DefaultCurrency = "PKR"
	// DefaultFeedLimit is the page size when the client sends none.
	DefaultFeedLimit = 20
	// MaxFeedLimit caps feed and search page sizes.
	MaxFeedLimit = 100
	// MaxListingImages caps images per listing.
	MaxListingImages = 6
	// MaxListingVideos caps videos per listing.
	MaxListingVideos = 1
	// MaxListingMedia caps media items per listing.
	MaxListingMedia = 7
	// MaxVideoDurationSeconds caps video length.
	MaxVideoDurationSeconds = 30
	// MaxChatMessageLength caps a chat message body.
	MaxChatMessageLength = 2000
)
