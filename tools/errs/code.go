package errs

// Error codes grouped by concern. 1xxx general, 2xxx auth, 3xxx storage.
const (
	ServerInternalError = 1000
	ArgsError           = 1001

	TokenInvalidError = 2001
	TokenExpiredError = 2002

	StoreUnavailableError = 3001
)

var (
	ErrInternalServer = NewCodeError(ServerInternalError, "server internal error")
	ErrArgs           = NewCodeError(ArgsError, "args error")

	ErrTokenInvalid = NewCodeError(TokenInvalidError, "token invalid")
	ErrTokenExpired = NewCodeError(TokenExpiredError, "token expired")

	ErrStoreUnavailable = NewCodeError(StoreUnavailableError, "durable store unavailable")
)
