package event

// Platform identifies which SDK flavour sent the batch. It selects the HMAC
// verification key and the CORS behaviour.
type Platform int

const (
	PlatformUnknown Platform = iota
	PlatformIOS
	PlatformAndroid
	PlatformWeb
)

func (p Platform) String() string {
	switch p {
	case PlatformIOS:
		return "ios"
	case PlatformAndroid:
		return "android"
	case PlatformWeb:
		return "web"
	default:
		return ""
	}
}
