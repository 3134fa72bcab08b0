package httpx

// Route paths served by the portal.
const (
	PathIndex   = "/"
	PathSignIn  = "/auth/signin"
	PathReturn  = "/auth/openid/return"
	PathSignOut = "/auth/signout"
	PathHealth  = "/healthz"
	PathStatic  = "/static/"
)

// Splash page query parameters added by the access point.
const (
	ParamBaseGrantURL    = "base_grant_url"
	ParamUserContinueURL = "user_continue_url"
)

// Template names.
const (
	tmplIndex    = "index"
	tmplError    = "error"
	tmplFormPost = "form-post"
)

// Template paths used for loading templates in tests and production.
const (
	StaticPathFromRoot   = "frontend/static"
	TemplatePathFromRoot = "frontend/templates"       // From project root
	TemplatePathFromTest = "../../frontend/templates" // From internal/http test files
)

// DefaultPortalTitle is shown when no title is configured.
const DefaultPortalTitle = "Meraki Captive Portal for Azure Active Directory"

// DefaultSSID is shown when no SSID label is configured.
const DefaultSSID = "WiFi"

// DefaultMaxFormBytes bounds the form_post body accepted on the return endpoint.
const DefaultMaxFormBytes int64 = 64 << 10
