package logger

// Console implements a console based logger.
type Console struct {
	Enabled          bool
	UseConsoleWriter bool
}

// LogFile implements a file based logger with one rolling file per level group.
type LogFile struct {
	Enabled bool
	Path    string

	AccessLog        string `mapstructure:"access"`
	AccessMaxSize    int
	AccessMaxBackups int
	AccessMaxAge     int

	ErrorLog        string `mapstructure:"error"`
	ErrorMaxSize    int
	ErrorMaxBackups int
	ErrorMaxAge     int

	InfoLog        string `mapstructure:"info"`
	InfoMaxSize    int
	InfoMaxBackups int
	InfoMaxAge     int

	TraceLog        string `mapstructure:"trace"`
	TraceMaxSize    int
	TraceMaxBackups int
	TraceMaxAge     int

	WarnLog        string `mapstructure:"warn"`
	WarnMaxSize    int
	WarnMaxBackups int
	WarnMaxAge     int
}

// Log implements the logger config.
type Log struct {
	LogLevel string // trace, debug, info, warn, error.

	// EnableAccessLogToConsole if true the http api writes its access log to the console.
	// Does not overrule flag Console.Enabled.
	EnableAccessLogToConsole bool
	ReportCaller             bool
	DisableCheckAlive        bool // do not log /checkalive calls

	// SQLLogLevel is the level at which gorm statements are logged, empty disables them.
	SQLLogLevel string

	AppName     string
	ServiceName string

	// Console used mainly for docker and dev.
	Console Console

	// File based logging.
	File LogFile
}
