package common

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "filecatalog_session"

// DefaultContentType is used when the MIME table has no entry for a file extension.
const DefaultContentType = "application/octet-stream"
