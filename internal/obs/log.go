package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide JSON line logger. Flags are zero because
// every line carries its own timestamp field.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest writes one structured line for a completed HTTP request. The
// same sink carries audit lines, so consumers can tail a single stream.
func LogRequest(entry map[string]any) {
	line, err := json.Marshal(entry)
	if err != nil {
		Logger().Printf(`{"level":"error","msg":"drop unloggable entry","error":%q}`, err.Error())
		return
	}
	Logger().Println(string(line))
}
