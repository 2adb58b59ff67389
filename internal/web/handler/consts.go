package handler

const (
	// RealmPath is the route group of everything scoped to one realm.
	RealmPath = "/realms/:realm"

	// ErrNilACDFatalLogMsg is used if app or cfg or deps var pointer is nil.
	ErrNilACDFatalLogMsg = "app, cfg or deps is nil"
)
